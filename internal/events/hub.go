package events

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/live-vision/internal/pipeline"
)

// Hub routes session events to the clients watching that session. A closed
// event is the last one a client receives.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "event-hub"),
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}

func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

func (h *Hub) OnEvent(ev pipeline.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[ev.SessionID]))
	for c := range h.clients[ev.SessionID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(ev)
		if ev.Type == pipeline.EventClosed {
			c.finish()
		}
	}
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	n := 0
	for _, set := range all {
		for c := range set {
			_ = c.Close()
			n++
		}
	}
	if n > 0 {
		h.logger.Info("closed event clients", "count", n)
	}
}
