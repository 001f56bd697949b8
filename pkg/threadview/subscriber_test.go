package threadview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func startRoomsServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriberFeedsThreadFromRoomEvents(t *testing.T) {
	endpoint := startRoomsServer(t, func(conn *websocket.Conn) {
		var cmd roomCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		_ = conn.WriteJSON(Event{
			ID:       "ev-1",
			Type:     EventCommentCreated,
			TicketID: cmd.TicketID,
			Comment:  &Comment{ID: "c-1", TicketID: cmd.TicketID, Author: "alice", Role: "customer", Message: "hello"},
		})
		// Returning closes the socket and ends the subscriber's read loop.
	})

	sub, err := Dial(context.Background(), endpoint, "token")
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Join("t-1"))

	th := NewThread()
	err = sub.Listen(context.Background(), Feed(th, "t-1"))
	require.Error(t, err, "server close ends the loop with the read error")

	entries := th.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "c-1", entries[0].Comment.ID)
	assert.Equal(t, "hello", entries[0].Comment.Message)
}

func TestListenReturnsOnContextCancel(t *testing.T) {
	endpoint := startRoomsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sub, err := Dial(context.Background(), endpoint, "token")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Listen(ctx, func(Event) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not stop after cancel")
	}
}
