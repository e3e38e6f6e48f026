package models

// Profile is one row of a personal store's profiles collection.
//
// The store owner's own profile carries the full key material. Profiles for
// other known users (inserted during linking) are placeholders holding only
// username and online flag; their key fields are empty strings.
type Profile struct {
	Username         string
	PasswordHash     string
	Online           bool
	PushSubscription string
	PublicKey        string
	PrivateKey       string
	SymmetricKey     string
}

// ExternalLink is a directed link row in a personal store pointing at a
// linked peer's store. A link between two users produces two rows, one in
// each store. PublicKey is empty when the peer's key was not known at link
// time; it is healed on the peer's next login.
type ExternalLink struct {
	Username      string
	Authenticator string
	StoreLocation string
	PublicKey     string
}
