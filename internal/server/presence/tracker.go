// Package presence counts live connections per user. A user is online while
// at least one websocket is open; entries disappear as soon as the count
// drops to zero so the map only ever holds currently connected users.
package presence

import "sync"

type Tracker struct {
	mu    sync.Mutex
	conns map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]int)}
}

// Connect records a new connection and reports whether the user just came
// online.
func (t *Tracker) Connect(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[username]++
	return t.conns[username] == 1
}

// Disconnect records a closed connection and reports whether the user just
// went offline.
func (t *Tracker) Disconnect(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.conns[username]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.conns, username)
		return true
	}
	t.conns[username] = n - 1
	return false
}

func (t *Tracker) Online(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[username] > 0
}

func (t *Tracker) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.conns))
	for u := range t.conns {
		out = append(out, u)
	}
	return out
}
