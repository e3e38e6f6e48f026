package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// AuthenticatorAlphabet is the fixed alphabet authenticators are sampled
// from. Authenticators are shared out-of-band between users, so the alphabet
// stays short and unambiguous.
const AuthenticatorAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// AuthenticatorLength is the length of a public authenticator code.
const AuthenticatorLength = 8

// MakeAuthenticator generates a random authenticator candidate. Uniqueness
// against the directory is the caller's responsibility.
func MakeAuthenticator() (string, error) {
	b := make([]byte, AuthenticatorLength)
	max := big.NewInt(int64(len(AuthenticatorAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = AuthenticatorAlphabet[n.Int64()]
	}
	return string(b), nil
}

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate, so the
// final string length is twice the size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MakeStoreName generates a personal-store database name. The timestamp
// component keeps names roughly sortable, the random suffix avoids collisions
// without any coordination.
func MakeStoreName() (string, error) {
	suffix, err := MakeRandHexString(4)
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return fmt.Sprintf("oc-%s-%s", ts, suffix), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Useful for removing key material from memory after use. A nil slice
// is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
