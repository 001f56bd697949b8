package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/observability"
)

// Broadcaster fans an event out to every subscriber of a ticket room. The
// comment append service receives one by injection so tests can substitute
// a recording fake.
type Broadcaster interface {
	Broadcast(ticketID string, event Event)
}

// Relay republishes locally originated events to sibling instances.
type Relay interface {
	Publish(event Event)
}

// Hub maintains one logical room per ticket. Rooms are created lazily on
// first join; an empty room is inert and needs no teardown. All membership
// mutations and local deliveries happen under one lock, so join, leave,
// broadcast and disconnect are linearizable with respect to a single room:
// once Disconnect has been observed, no further event reaches that
// connection.
type Hub struct {
	mu sync.Mutex
	// rooms maps ticket id to the member set.
	rooms map[string]map[*Conn]struct{}
	// memberships maps a connection to the rooms it joined.
	memberships map[*Conn]map[string]struct{}

	relay   Relay
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Conn]struct{}),
		memberships: make(map[*Conn]map[string]struct{}),
		logger:      logger,
		metrics:     metrics,
	}
}

// SetRelay attaches a cross-instance relay. Must be called before the hub
// starts accepting connections.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Join subscribes the connection to a ticket room.
func (h *Hub) Join(conn *Conn, ticketID string) {
	if conn == nil || ticketID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn.closed {
		return
	}
	room, ok := h.rooms[ticketID]
	if !ok {
		room = make(map[*Conn]struct{})
		h.rooms[ticketID] = room
	}
	room[conn] = struct{}{}

	joined, ok := h.memberships[conn]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[conn] = joined
	}
	joined[ticketID] = struct{}{}

	h.logger.Debug("room join", zap.String("ticket_id", ticketID), zap.String("conn", conn.ID()))
}

// Leave removes the connection from a ticket room.
func (h *Hub) Leave(conn *Conn, ticketID string) {
	if conn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, ticketID)
}

// Disconnect drops every room membership of the connection and closes its
// event stream. Atomic with respect to concurrent broadcasts.
func (h *Hub) Disconnect(conn *Conn) {
	if conn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for ticketID := range h.memberships[conn] {
		h.leaveLocked(conn, ticketID)
	}
	delete(h.memberships, conn)
	conn.close()

	h.logger.Debug("connection closed", zap.String("conn", conn.ID()))
}

// Broadcast delivers the event to every member of the ticket's room, in
// invocation order, and forwards it to sibling instances. Delivery per
// connection is best-effort.
func (h *Hub) Broadcast(ticketID string, event Event) {
	h.deliverLocal(ticketID, event)
	if h.relay != nil {
		h.relay.Publish(event)
	}
}

// deliverLocal fans out to connections on this instance only. The relay
// calls this for remote events to avoid republish loops.
func (h *Hub) deliverLocal(ticketID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[ticketID]
	delivered, dropped := 0, 0
	for conn := range room {
		if conn.enqueue(event) {
			delivered++
		} else {
			dropped++
		}
	}
	h.metrics.RecordBroadcast(delivered, dropped)
	if dropped > 0 {
		h.logger.Warn("slow subscribers missed event",
			zap.String("ticket_id", ticketID),
			zap.String("event", string(event.Type)),
			zap.Int("dropped", dropped),
		)
	}
}

// RoomSize reports current membership of a ticket room.
func (h *Hub) RoomSize(ticketID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[ticketID])
}

func (h *Hub) leaveLocked(conn *Conn, ticketID string) {
	room, ok := h.rooms[ticketID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, ticketID)
	}
	if joined, ok := h.memberships[conn]; ok {
		delete(joined, ticketID)
	}
}
