package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/notify"
)

// Registry is the authoritative in-memory index of live connections, keyed
// three ways: the flat set of all connections, by user id, and by channel
// id. All mutation goes through registry methods; handler code never touches
// the maps directly.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Client            // conn id -> client
	byUser    map[string]map[string]*Client // user id -> conn id -> client
	byChannel map[string]map[string]*Client // channel id -> conn id -> client
	logger    zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:     make(map[string]*Client),
		byUser:    make(map[string]map[string]*Client),
		byChannel: make(map[string]map[string]*Client),
		logger:    logger.With().Str("component", "registry").Logger(),
	}
}

// Add registers a connection globally and under its user id.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	if r.byUser[c.UserID()] == nil {
		r.byUser[c.UserID()] = make(map[string]*Client)
	}
	r.byUser[c.UserID()][c.ID()] = c

	r.logger.Debug().Str("conn_id", c.ID()).Str("user_id", c.UserID()).Msg("connection registered")
}

// AddToChannel indexes a connection under a channel id.
func (r *Registry) AddToChannel(channelID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return
	}
	if r.byChannel[channelID] == nil {
		r.byChannel[channelID] = make(map[string]*Client)
	}
	r.byChannel[channelID][c.ID()] = c
}

// RemoveFromChannel drops a connection's channel index entry, deleting the
// bucket when it becomes empty. Reports whether the entry existed.
func (r *Registry) RemoveFromChannel(channelID string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeFromChannelLocked(channelID, c)
}

func (r *Registry) removeFromChannelLocked(channelID string, c *Client) bool {
	members, ok := r.byChannel[channelID]
	if !ok {
		return false
	}
	if _, ok := members[c.ID()]; !ok {
		return false
	}
	delete(members, c.ID())
	if len(members) == 0 {
		delete(r.byChannel, channelID)
	}
	return true
}

// RemoveFromAll unregisters a connection from every index and returns the
// channel ids it was a member of, so the caller can emit departure events.
// Idempotent: a second call returns nil.
func (r *Registry) RemoveFromAll(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return nil
	}
	delete(r.conns, c.ID())

	if userConns, ok := r.byUser[c.UserID()]; ok {
		delete(userConns, c.ID())
		if len(userConns) == 0 {
			delete(r.byUser, c.UserID())
		}
	}

	var channels []string
	for channelID := range r.byChannel {
		if r.removeFromChannelLocked(channelID, c) {
			channels = append(channels, channelID)
		}
	}
	return channels
}

// Channel returns a snapshot of the connections indexed under a channel.
func (r *Registry) Channel(channelID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byChannel[channelID])
}

// User returns a snapshot of a user's connections.
func (r *Registry) User(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.conns)
}

// ForChannel invokes fn for each connection in a channel while holding the
// read lock, so a delivery pass is linearizable with concurrent joins and
// leaves. fn must not block; enqueueing on a client send buffer is fine.
func (r *Registry) ForChannel(channelID string, fn func(*Client)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byChannel[channelID] {
		fn(c)
	}
}

// ClientCount returns the number of registered connections.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ChannelCounts returns channel ids with their member counts.
func (r *Registry) ChannelCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int, len(r.byChannel))
	for id, members := range r.byChannel {
		counts[id] = len(members)
	}
	return counts
}

// Subscribers returns every connection subscribed to notification pushes.
func (r *Registry) Subscribers() []notify.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []notify.Subscriber
	for _, c := range r.conns {
		if c.Subscribed() {
			subs = append(subs, c)
		}
	}
	return subs
}

// SubscribersOf returns the subscribed connections of the given users only.
func (r *Registry) SubscribersOf(userIDs []string) []notify.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []notify.Subscriber
	for _, userID := range userIDs {
		for _, c := range r.byUser[userID] {
			if c.Subscribed() {
				subs = append(subs, c)
			}
		}
	}
	return subs
}

func snapshot(m map[string]*Client) []*Client {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
