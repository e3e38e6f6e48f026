// Package notify defines the realtime delivery seams: events fanned out to
// connected websocket clients and pushed to offline subscriptions.
package notify

import "context"

// Event kinds delivered to clients.
const (
	KindMessage      = "message"
	KindGroupMessage = "group-message"
	KindGroupUpdate  = "group-update"
	KindGroupDeleted = "group-deleted"
	KindLinked       = "linked"
)

// Event is the payload sent to a client. Bodies are plain text here; the
// encrypted copies only ever live in the stores.
type Event struct {
	Kind      string `json:"kind"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
	GroupName string `json:"groupName,omitempty"`
	Body      string `json:"body,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Notifier delivers an event to a user's live connections, if any.
type Notifier interface {
	Notify(username string, ev *Event)
}

// Pusher delivers an event to an offline push subscription.
type Pusher interface {
	Push(ctx context.Context, subscription string, ev *Event) error
}
