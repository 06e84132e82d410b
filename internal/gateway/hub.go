// Package gateway exposes the engine over websockets: one connection per
// client per meeting, typed JSON events out, client commands in.
package gateway

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// sendQueueSize bounds the per-client outbound buffer. A client that cannot
// drain this many events is disconnected rather than allowed to stall the
// pipeline.
const sendQueueSize = 64

// client is one websocket subscriber.
type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan insight.Event
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans session events out to every client subscribed to that session.
// It implements session.Broadcaster.
type Hub struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[string]map[*client]struct{} // session id -> subscribers
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// Broadcast queues the event for every subscriber of its session. Slow
// subscribers whose queue is full are dropped; the meeting must not wait
// for a stuck client.
func (h *Hub) Broadcast(evt insight.Event) {
	h.mu.Lock()
	subs := h.clients[evt.SessionID]
	var stuck []*client
	for c := range subs {
		select {
		case c.send <- evt:
		default:
			delete(subs, c)
			stuck = append(stuck, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stuck {
		h.logger.Printf("gateway: dropping slow client on session %s", c.sessionID)
		c.close()
	}
}

// CloseSession disconnects every subscriber of a session and drops its
// subscriber set. Called when a session is finalized, including by the idle
// reaper; it implements session.SessionCloser.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	subs := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	for c := range subs {
		c.close()
	}
}

// Subscribers reports the client count for one session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[c.sessionID]
	if !ok {
		subs = make(map[*client]struct{})
		h.clients[c.sessionID] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	subs, ok := h.clients[c.sessionID]
	if ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.clients, c.sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// writePump drains the client's queue onto the wire. Exits when the queue
// closes or a write fails.
func (c *client) writePump() {
	defer c.conn.Close()
	for evt := range c.send {
		if err := c.conn.WriteJSON(evt); err != nil {
			return
		}
	}
}
