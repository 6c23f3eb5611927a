package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorechart/internal/model"
)

// Entity names the kind of record a sync message is about.
type Entity string

const (
	EntityKid        Entity = "kid"
	EntityChore      Entity = "chore"
	EntityAssignment Entity = "assignment"
)

// Action is what happened to the entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionToggled Action = "toggled"
	ActionBatch   Action = "batch"
)

// Message is a sync notification pushed to every connected board so other
// devices refetch the affected kid's progress.
type Message struct {
	Version int            `json:"v"`
	Type    string         `json:"type"`
	Entity  Entity         `json:"entity"`
	Action  Action         `json:"action"`
	ID      int64          `json:"id,omitempty"`
	KidID   int64          `json:"kid_id,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewMessage builds a Message whose Type is "<entity>_<action>".
func NewMessage(entity Entity, action Action, id int64, extra map[string]any) Message {
	return Message{
		Version: model.SchemaVersion,
		Type:    string(entity) + "_" + string(action),
		Entity:  entity,
		Action:  action,
		ID:      id,
		Extra:   extra,
	}
}

// ForKid scopes the message to one kid's board.
func (m Message) ForKid(kidID int64) Message {
	m.KidID = kidID
	return m
}

// Broadcaster is the publishing side of the hub, as seen by handlers.
type Broadcaster interface {
	Broadcast(msg Message) int
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", h.ClientCount())
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client and returns how many were skipped
// because their buffer was full.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("slow clients skipped", "type", msg.Type, "dropped", dropped)
	}
	return dropped
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
