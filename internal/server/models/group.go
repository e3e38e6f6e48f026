package models

// Group is a replicated group-chat record. An identical (or reconciled) copy
// exists in the personal store of every current member. Members is kept as a
// plain slice; repositories persist it JSON-encoded.
type Group struct {
	ID        string
	Name      string
	Creator   string
	Members   []string
	CreatedAt int64 // unix milliseconds
	UpdatedAt int64
}

// HasMember reports whether username is in the member list.
func (g *Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

// GroupMessage is a group message row, replicated to every member's store
// under the same caller-assigned ID so replication is idempotent.
type GroupMessage struct {
	ID        string
	GroupID   string
	Sender    string
	Body      string
	FileURL   string
	FileName  string
	FileType  string
	FileSize  int64
	Timestamp int64 // unix milliseconds
}
