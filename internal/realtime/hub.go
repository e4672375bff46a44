package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
)

// ErrUnknownConnection is returned when subscribing a connection the hub does not know.
var ErrUnknownConnection = errors.New("unknown realtime connection")

const clientBuffer = 16

// Client is one live connection registered with the hub.
type Client struct {
	id     string
	userID string
	send   chan domain.Event
	groups map[string]struct{}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the user bound at connect time, possibly empty.
func (c *Client) UserID() string { return c.userID }

// Events yields the events delivered to this connection. The channel is
// closed when the connection is disconnected or the hub shuts down.
func (c *Client) Events() <-chan domain.Event { return c.send }

// Hub is the in-process broadcast registry: group name -> live connections.
// It starts empty and Close clears it on shutdown.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
	}
}

// Connect registers a new connection. When userID is set the connection also
// joins the user's personal group.
func (h *Hub) Connect(userID string) *Client {
	c := &Client{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan domain.Event, clientBuffer),
		groups: make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.send)
		return c
	}
	h.clients[c.id] = c
	if userID != "" {
		h.subscribeLocked(c, domain.UserGroup(userID))
	}
	return c
}

// Subscribe adds the connection to a group (a room code).
func (h *Hub) Subscribe(connID, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	h.subscribeLocked(c, group)
	return nil
}

func (h *Hub) subscribeLocked(c *Client, group string) {
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[c.id] = c
	c.groups[group] = struct{}{}
}

// Unsubscribe removes the connection from a group. Unknown pairs are ignored.
func (h *Hub) Unsubscribe(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.unsubscribeLocked(c, group)
	}
}

func (h *Hub) unsubscribeLocked(c *Client, group string) {
	delete(c.groups, group)
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Disconnect drops the connection from every group it joined and closes its
// event channel.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	for group := range c.groups {
		h.unsubscribeLocked(c, group)
	}
	delete(h.clients, connID)
	close(c.send)
}

// Publish implements app.Publisher on top of the local registry.
func (h *Hub) Publish(ctx context.Context, event domain.Event) error {
	delivered := h.Deliver(event)
	config.WithContext(ctx).WithFields(logrus.Fields{
		"group":     event.Group,
		"event":     event.Name,
		"delivered": delivered,
	}).Debug("broadcast")
	return nil
}

// Deliver hands the event to every connection in its group and returns how
// many received it. A full buffer drops its oldest event rather than block
// the publisher; slow peers re-sync through the API.
func (h *Hub) Deliver(event domain.Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.groups[event.Group] {
		select {
		case c.send <- event:
			delivered++
			continue
		default:
		}
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// GroupSize reports how many connections are subscribed to group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Groups lists the groups a connection belongs to.
func (h *Hub) Groups(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	return out
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.groups = make(map[string]map[string]*Client)
}
