package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MDx-Vision/nicehr-realtime/config"
	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/notify"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// recordConn implements types.Conn and records outbound events.
type recordConn struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordConn) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := v.(types.Event); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func (r *recordConn) ReadJSON(any) error { return nil }
func (r *recordConn) WritePing() error   { return nil }
func (r *recordConn) Close() error       { return nil }

func (r *recordConn) countType(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type openMembership struct{}

func (openMembership) IsChannelMember(context.Context, string, string) (bool, error) {
	return true, nil
}

func (openMembership) QuietHours(context.Context, string) (types.QuietHours, error) {
	return types.QuietHours{}, nil
}

type memStore struct{}

func (memStore) PersistMessage(_ context.Context, channelID, senderID, content string) (types.StoredMessage, error) {
	return types.StoredMessage{ID: "m1", ChannelID: channelID, SenderID: senderID, Content: content}, nil
}

func (memStore) RecordRead(context.Context, string, string, string) error { return nil }

func newTestServer(t *testing.T) (*Server, *hub.Registry) {
	t.Helper()
	reg := hub.NewRegistry(zerolog.Nop())
	bc := hub.NewBroadcaster(reg, openMembership{}, memStore{}, zerolog.Nop())
	agg := notify.NewAggregator(reg, zerolog.Nop())
	agg.Register(notify.Provider{
		Name:  "open_tickets",
		Query: func(context.Context, string, types.Role) (int, error) { return 5, nil },
	})
	return New(config.Default(), nil, reg, bc, agg, zerolog.Nop()), reg
}

func newDispatchClient(t *testing.T, reg *hub.Registry, id, userID string) (*hub.Client, *recordConn) {
	t.Helper()
	conn := &recordConn{}
	c := hub.NewClient(id, userID, types.RoleMember, conn, 16, zerolog.Nop())
	reg.Add(c)
	go c.WritePump()
	return c, conn
}

func settle() { time.Sleep(30 * time.Millisecond) }

func TestDispatchUnknownType(t *testing.T) {
	s, reg := newTestServer(t)
	c, conn := newDispatchClient(t, reg, "c1", "user-a")

	s.dispatch(context.Background(), c, types.Message{Type: "teleport"})
	settle()

	assert.Equal(t, 1, conn.countType(types.EventError))
	assert.Equal(t, 1, reg.ClientCount(), "protocol errors never terminate the connection")
}

func TestDispatchMissingRequiredFields(t *testing.T) {
	s, reg := newTestServer(t)
	c, conn := newDispatchClient(t, reg, "c1", "user-a")

	cases := []types.Message{
		{Type: types.TypeJoin},
		{Type: types.TypeLeave},
		{Type: types.TypeMessage, ChannelID: "general"}, // no content
		{Type: types.TypeMessage, Content: "hi"},        // no channel
		{Type: types.TypeTyping},
		{Type: types.TypeRead, ChannelID: "general"}, // no message id
	}
	for _, msg := range cases {
		s.dispatch(context.Background(), c, msg)
	}
	settle()

	assert.Equal(t, len(cases), conn.countType(types.EventError))
	assert.Empty(t, reg.ChannelCounts(), "malformed messages are otherwise no-ops")
}

func TestDispatchJoinAndChat(t *testing.T) {
	s, reg := newTestServer(t)
	a, _ := newDispatchClient(t, reg, "c1", "user-a")
	b, connB := newDispatchClient(t, reg, "c2", "user-b")

	s.dispatch(context.Background(), a, types.Message{Type: types.TypeJoin, ChannelID: "general"})
	s.dispatch(context.Background(), b, types.Message{Type: types.TypeJoin, ChannelID: "general"})
	s.dispatch(context.Background(), a, types.Message{Type: types.TypeMessage, ChannelID: "general", Content: "hi"})
	settle()

	assert.Equal(t, 1, connB.countType(types.EventNewMessage))
	assert.Len(t, reg.Channel("general"), 2)
}

func TestDispatchSubscribeSendsImmediateSnapshot(t *testing.T) {
	s, reg := newTestServer(t)
	c, conn := newDispatchClient(t, reg, "c1", "user-a")

	s.dispatch(context.Background(), c, types.Message{Type: types.TypeSubscribe})
	settle()

	require.True(t, c.Subscribed())
	require.Equal(t, 1, conn.countType(types.EventNotificationCounts))

	s.dispatch(context.Background(), c, types.Message{Type: types.TypeUnsubscribe})
	assert.False(t, c.Subscribed())
}
