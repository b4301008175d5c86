package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// Client wraps one authenticated WebSocket connection. A Client is only
// constructed after the handshake has resolved a user, so UserID and Role
// are always set. The connection handler owns every field except alive,
// which the heartbeat supervisor also flips.
type Client struct {
	id     string
	userID string
	role   types.Role

	conn        types.Conn
	send        chan types.Event
	connectedAt time.Time

	// channels is this connection's own view of its joined channels,
	// mutated only by its join/leave handling. The registry holds the
	// authoritative fan-out index.
	channels map[string]bool

	alive      atomic.Bool
	subscribed atomic.Bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	logger zerolog.Logger
}

// NewClient creates a client wrapper for an authenticated connection.
func NewClient(id, userID string, role types.Role, conn types.Conn, sendBuffer int, logger zerolog.Logger) *Client {
	c := &Client{
		id:          id,
		userID:      userID,
		role:        role,
		conn:        conn,
		send:        make(chan types.Event, sendBuffer),
		connectedAt: time.Now(),
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
		logger:      logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
	c.alive.Store(true)
	return c
}

// ID returns the opaque connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated application user id.
func (c *Client) UserID() string { return c.userID }

// Role returns the role snapshotted at handshake.
func (c *Client) Role() types.Role { return c.role }

// ConnectedAt returns when the connection was accepted.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Alive reports the heartbeat liveness flag.
func (c *Client) Alive() bool { return c.alive.Load() }

// MarkAlive records a liveness response. Application traffic never calls
// this; only the transport's pong handler does.
func (c *Client) MarkAlive() { c.alive.Store(true) }

// Suspect clears the liveness flag ahead of the next probe.
func (c *Client) Suspect() { c.alive.Store(false) }

// Subscribed reports whether notification snapshots should be pushed here.
func (c *Client) Subscribed() bool { return c.subscribed.Load() }

// SetSubscribed toggles notification push delivery.
func (c *Client) SetSubscribed(v bool) { c.subscribed.Store(v) }

// Channels returns a copy of the channels this connection has joined.
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(c.channels)
}

func (c *Client) trackJoin(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channelID] = true
}

func (c *Client) trackLeave(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}

// TrySend enqueues an event without blocking. Events for closed connections
// or full buffers are dropped; a dead transport is reaped by the heartbeat
// supervisor, not by the sender.
func (c *Client) TrySend(ev types.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.logger.Warn().Str("event", ev.Type).Msg("send buffer full, dropping")
		return false
	}
}

// ReadMessage blocks for the next inbound envelope.
func (c *Client) ReadMessage() (types.Message, error) {
	var msg types.Message
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

// Ping sends a transport-level liveness probe.
func (c *Client) Ping() error { return c.conn.WritePing() }

// WritePump writes queued events to the WebSocket. Call in a goroutine.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the write pump and releases the send queue. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.send)
	}
}
