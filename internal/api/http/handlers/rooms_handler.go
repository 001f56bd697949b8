package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/realtime"
	"github.com/spec-kit/helpdesk/internal/service"
)

// RoomsHandler serves the realtime websocket endpoint. Each connection may
// join any number of ticket rooms and receives every event broadcast to the
// rooms it is in at the moment of the broadcast.
type RoomsHandler struct {
	hub           *realtime.Hub
	ticketService *service.TicketService
	bufferSize    int
	logger        *zap.Logger
}

// NewRoomsHandler constructs handler.
func NewRoomsHandler(hub *realtime.Hub, tickets *service.TicketService, bufferSize int, logger *zap.Logger) *RoomsHandler {
	return &RoomsHandler{hub: hub, ticketService: tickets, bufferSize: bufferSize, logger: logger}
}

// roomCommand is the inbound control frame: join or leave a ticket room.
type roomCommand struct {
	Action   string `json:"action"`
	TicketID string `json:"ticket_id"`
}

// roomError is sent back when a control frame cannot be honored. Events keep
// flowing for rooms already joined.
type roomError struct {
	Error    string `json:"error"`
	TicketID string `json:"ticket_id,omitempty"`
}

// UpgradeRequired rejects plain HTTP requests on the websocket route.
func (h *RoomsHandler) UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve returns the upgraded websocket handler. A single writer goroutine
// drains the hub subscription; the read loop handles join/leave commands.
// Closing the socket, from either side, detaches the connection from every
// room it joined.
func (h *RoomsHandler) Serve() fiber.Handler {
	return websocket.New(func(ws *websocket.Conn) {
		principal, ok := auth.PrincipalFromLocals(func(key string) interface{} { return ws.Locals(key) })
		if !ok {
			_ = ws.Close()
			return
		}
		viewer := service.Viewer{Username: principal.Username(), Role: principal.Role()}

		conn := realtime.NewConn(h.bufferSize)
		defer h.hub.Disconnect(conn)

		var writeMu sync.Mutex
		writeJSON := func(v interface{}) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return ws.WriteJSON(v)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for event := range conn.Events() {
				if err := writeJSON(event); err != nil {
					_ = ws.Close()
					return
				}
			}
		}()

		for {
			var cmd roomCommand
			if err := ws.ReadJSON(&cmd); err != nil {
				break
			}
			h.handleCommand(conn, viewer, cmd, writeJSON)
		}

		// Disconnect closes the event stream, which ends the writer.
		h.hub.Disconnect(conn)
		<-done
	})
}

func (h *RoomsHandler) handleCommand(conn *realtime.Conn, viewer service.Viewer, cmd roomCommand, writeJSON func(interface{}) error) {
	ticketID := strings.TrimSpace(cmd.TicketID)
	if ticketID == "" {
		_ = writeJSON(roomError{Error: "ticket_id required"})
		return
	}

	switch cmd.Action {
	case "join":
		// Room membership follows ticket visibility: joining a ticket the
		// viewer cannot read is refused, not silently ignored.
		if _, err := h.ticketService.Get(context.Background(), viewer, ticketID); err != nil {
			h.logger.Warn("room join refused",
				zap.String("ticket_id", ticketID),
				zap.String("username", viewer.Username),
				zap.Error(err))
			_ = writeJSON(roomError{Error: "cannot join room", TicketID: ticketID})
			return
		}
		h.hub.Join(conn, ticketID)
	case "leave":
		h.hub.Leave(conn, ticketID)
	default:
		_ = writeJSON(roomError{Error: "unknown action", TicketID: ticketID})
	}
}
