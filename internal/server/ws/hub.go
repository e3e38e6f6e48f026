// Package ws fans events out to connected websocket clients. A user may
// hold several connections at once (multiple tabs, devices); an event for a
// user goes to all of them.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/notify"
	"github.com/openchat-im/openchat/internal/server/presence"
)

type Hub struct {
	log      logging.Logger
	presence *presence.Tracker

	// onPresence fires when a user's first connection opens or last
	// connection closes.
	onPresence func(username string, online bool)

	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

func NewHub(log logging.Logger, tracker *presence.Tracker, onPresence func(username string, online bool)) *Hub {
	return &Hub{
		log:        log,
		presence:   tracker,
		onPresence: onPresence,
		clients:    make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.username]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[c.username] = set
	}
	set[c] = true
	h.mu.Unlock()

	if h.presence.Connect(c.username) && h.onPresence != nil {
		h.onPresence(c.username, true)
	}
	h.log.Debug(context.Background(), "websocket connected", "username", c.username)
}

func (h *Hub) unregister(c *Client) {
	removed := false
	h.mu.Lock()
	if set, ok := h.clients[c.username]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.username)
		}
		close(c.send)
		removed = true
	}
	h.mu.Unlock()

	if removed {
		if h.presence.Disconnect(c.username) && h.onPresence != nil {
			h.onPresence(c.username, false)
		}
		h.log.Debug(context.Background(), "websocket disconnected", "username", c.username)
	}
}

// Notify implements notify.Notifier. Slow clients are dropped rather than
// allowed to block delivery to everyone else.
func (h *Hub) Notify(username string, ev *notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	var stuck []*Client
	for c := range h.clients[username] {
		select {
		case c.send <- data:
		default:
			stuck = append(stuck, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stuck {
		h.unregister(c)
	}
}

// Connections reports how many open connections a user has.
func (h *Hub) Connections(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[username])
}
