package hub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// mockConn implements types.Conn without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	events   []types.Event
	pings    int
	onPing   func()
	readCh   chan types.Message
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Message, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := v.(types.Event); ok {
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case msg := <-m.readCh:
		if ptr, ok := v.(*types.Message); ok {
			*ptr = msg
		}
		return nil
	case <-m.closedCh:
		return &closeError{}
	}
}

func (m *mockConn) WritePing() error {
	m.mu.Lock()
	m.pings++
	cb := m.onPing
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getEvents() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockConn) countType(eventType string) int {
	n := 0
	for _, ev := range m.getEvents() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func (m *mockConn) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

// fakeMembership is an in-memory membership authority.
type fakeMembership struct {
	mu      sync.Mutex
	members map[string]map[string]bool // channel id -> user id -> member
	quiet   map[string]types.QuietHours
	err     error
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		members: make(map[string]map[string]bool),
		quiet:   make(map[string]types.QuietHours),
	}
}

func (f *fakeMembership) allow(channelID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[channelID] == nil {
		f.members[channelID] = make(map[string]bool)
	}
	f.members[channelID][userID] = true
}

func (f *fakeMembership) IsChannelMember(_ context.Context, channelID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.members[channelID][userID], nil
}

func (f *fakeMembership) QuietHours(_ context.Context, channelID string) (types.QuietHours, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quiet[channelID], nil
}

// fakeStore is an in-memory message store.
type fakeStore struct {
	mu       sync.Mutex
	fail     error
	messages []types.StoredMessage
	reads    map[string]string // channel id + user id -> message id
}

func newFakeStore() *fakeStore {
	return &fakeStore{reads: make(map[string]string)}
}

func (f *fakeStore) PersistMessage(_ context.Context, channelID, senderID, content string) (types.StoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return types.StoredMessage{}, f.fail
	}
	msg := types.StoredMessage{
		ID:        "msg-1",
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) RecordRead(_ context.Context, channelID, userID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.reads[channelID+"/"+userID] = messageID
	return nil
}

// newTestClient creates a registered client with a running write pump.
func newTestClient(t *testing.T, reg *hub.Registry, id, userID string, role types.Role) (*hub.Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	c := hub.NewClient(id, userID, role, conn, 16, zerolog.Nop())
	reg.Add(c)
	go c.WritePump()
	return c, conn
}

// settle gives the write pumps time to drain.
func settle() { time.Sleep(30 * time.Millisecond) }
