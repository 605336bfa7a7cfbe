package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/shopgrab/internal/model"
)

// Message is a job state change pushed to the owning account's clients.
type Message struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Error  string `json:"error,omitempty"`
}

// NewMessage derives the message Type from the job status.
func NewMessage(ev model.JobEvent) Message {
	return Message{
		Type:   "job_" + ev.Status,
		JobID:  ev.JobID,
		Status: ev.Status,
		URL:    ev.URL,
		Error:  ev.Error,
	}
}

// Hub tracks connected clients per account.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.accountID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.accountID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.accountID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.accountID)
		}
	}
	h.mu.Unlock()
}

// Publish sends ev to every client of the event's account. It never blocks.
func (h *Hub) Publish(ev model.JobEvent) {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		h.logger.Error("marshal job event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[ev.AccountID] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
