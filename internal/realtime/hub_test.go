package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

func newTestHub() *Hub {
	return NewHub(zap.NewNop(), observability.NewMetrics())
}

func createdEvent(ticketID, commentID string) Event {
	return NewCommentCreated(&domain.Comment{
		ID:         commentID,
		TicketID:   ticketID,
		Author:     "alice",
		AuthorRole: domain.RoleCustomer,
		Message:    "hello",
	})
}

func drain(conn *Conn) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := newTestHub()

	inRoom := NewConn(8)
	other := NewConn(8)
	hub.Join(inRoom, "t1")
	hub.Join(other, "t2")

	hub.Broadcast("t1", createdEvent("t1", "c1"))

	got := drain(inRoom)
	require.Len(t, got, 1)
	assert.Equal(t, EventCommentCreated, got[0].Type)
	assert.Equal(t, "c1", got[0].Comment.ID)

	assert.Empty(t, drain(other))
}

func TestBroadcastOrderWithinRoom(t *testing.T) {
	hub := newTestHub()
	conn := NewConn(16)
	hub.Join(conn, "t1")

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		hub.Broadcast("t1", createdEvent("t1", id))
	}

	got := drain(conn)
	require.Len(t, got, 4)
	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		assert.Equal(t, id, got[i].Comment.ID)
	}
}

func TestConnectionCanJoinMultipleRooms(t *testing.T) {
	hub := newTestHub()
	conn := NewConn(8)
	hub.Join(conn, "t1")
	hub.Join(conn, "t2")

	hub.Broadcast("t1", createdEvent("t1", "c1"))
	hub.Broadcast("t2", createdEvent("t2", "c2"))

	got := drain(conn)
	require.Len(t, got, 2)
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := newTestHub()
	conn := NewConn(8)
	hub.Join(conn, "t1")
	hub.Leave(conn, "t1")

	hub.Broadcast("t1", createdEvent("t1", "c1"))

	assert.Empty(t, drain(conn))
	assert.Equal(t, 0, hub.RoomSize("t1"))
}

func TestDisconnectDropsAllMembershipsAndClosesStream(t *testing.T) {
	hub := newTestHub()
	conn := NewConn(8)
	hub.Join(conn, "t1")
	hub.Join(conn, "t2")

	hub.Disconnect(conn)

	assert.Equal(t, 0, hub.RoomSize("t1"))
	assert.Equal(t, 0, hub.RoomSize("t2"))

	hub.Broadcast("t1", createdEvent("t1", "c1"))

	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestJoinAfterDisconnectIsNoop(t *testing.T) {
	hub := newTestHub()
	conn := NewConn(8)
	hub.Join(conn, "t1")
	hub.Disconnect(conn)

	hub.Join(conn, "t1")
	assert.Equal(t, 0, hub.RoomSize("t1"))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := newTestHub()
	slow := NewConn(1)
	fast := NewConn(8)
	hub.Join(slow, "t1")
	hub.Join(fast, "t1")

	hub.Broadcast("t1", createdEvent("t1", "c1"))
	hub.Broadcast("t1", createdEvent("t1", "c2"))

	assert.Len(t, drain(slow), 1)
	assert.Len(t, drain(fast), 2)
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	hub := newTestHub()

	stable := NewConn(2048)
	hub.Join(stable, "t1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				conn := NewConn(4)
				hub.Join(conn, "t1")
				hub.Broadcast("t1", createdEvent("t1", "c"))
				hub.Disconnect(conn)
			}
		}()
	}
	wg.Wait()

	// 8 goroutines x 50 broadcasts, all observed by the stable member.
	assert.Len(t, drain(stable), 400)
	assert.Equal(t, 1, hub.RoomSize("t1"))
}
