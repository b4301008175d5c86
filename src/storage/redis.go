package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/session"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// Store implements the collaborator interfaces against the Redis instance
// shared with the surrounding application: session lookup, channel
// membership and quiet hours, message persistence, read markers, and the
// counter keys backing the notification providers.
//
// Key layout (under the configured prefix):
//
//	session:<id>                  hash: user_id, role
//	channel:<id>:members          set of user ids
//	channel:<id>:quiet            hash: enabled, start_hour, end_hour
//	channel:<id>:messages         stream of chat messages
//	channel:<id>:read             hash: user id -> last-read message id
//	counts:<name>:<user id>       integer counter (user-scoped)
//	counts:<name>                 integer counter (tenant-wide)
type Store struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// New creates a store over an existing Redis client.
func New(client *redis.Client, prefix string, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "storage").Logger(),
	}
}

// Ping verifies the Redis connection at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LookupSession returns the session attributes for a session id, or an
// error when the session does not exist.
func (s *Store) LookupSession(ctx context.Context, sessionID string) (session.Record, error) {
	attrs, err := s.client.HGetAll(ctx, s.prefix+"session:"+sessionID).Result()
	if err != nil {
		return session.Record{}, fmt.Errorf("session lookup: %w", err)
	}
	if len(attrs) == 0 {
		return session.Record{}, fmt.Errorf("session %s not found", sessionID)
	}
	return session.Record{UserID: attrs["user_id"], Role: attrs["role"]}, nil
}

// IsChannelMember reports whether the user belongs to the channel.
func (s *Store) IsChannelMember(ctx context.Context, channelID, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.prefix+"channel:"+channelID+":members", userID).Result()
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return ok, nil
}

// QuietHours returns the channel's quiet-hours window. A channel with no
// configuration gets a disabled window.
func (s *Store) QuietHours(ctx context.Context, channelID string) (types.QuietHours, error) {
	attrs, err := s.client.HGetAll(ctx, s.prefix+"channel:"+channelID+":quiet").Result()
	if err != nil {
		return types.QuietHours{}, fmt.Errorf("quiet hours lookup: %w", err)
	}
	if len(attrs) == 0 {
		return types.QuietHours{}, nil
	}

	enabled, _ := strconv.ParseBool(attrs["enabled"])
	start, _ := strconv.Atoi(attrs["start_hour"])
	end, _ := strconv.Atoi(attrs["end_hour"])
	return types.QuietHours{Enabled: enabled, StartHour: start, EndHour: end}, nil
}

// PersistMessage appends the message to the channel's stream and returns
// the stored record. The stream entry id doubles as the message id.
func (s *Store) PersistMessage(ctx context.Context, channelID, senderID, content string) (types.StoredMessage, error) {
	now := time.Now().UTC()
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.prefix + "channel:" + channelID + ":messages",
		Values: map[string]any{
			"sender_id":  senderID,
			"content":    content,
			"created_at": now.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("persist message: %w", err)
	}

	return types.StoredMessage{
		ID:        id,
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// RecordRead updates the member's last-read marker for the channel.
func (s *Store) RecordRead(ctx context.Context, channelID, userID, messageID string) error {
	err := s.client.HSet(ctx, s.prefix+"channel:"+channelID+":read", userID, messageID).Err()
	if err != nil {
		return fmt.Errorf("record read: %w", err)
	}
	return nil
}

// UserCounter returns a provider query reading a user-scoped counter key.
// A missing key counts as zero.
func (s *Store) UserCounter(name string) func(ctx context.Context, userID string, role types.Role) (int, error) {
	return func(ctx context.Context, userID string, _ types.Role) (int, error) {
		return s.counter(ctx, s.prefix+"counts:"+name+":"+userID)
	}
}

// TenantCounter returns a provider query reading a tenant-wide counter key.
func (s *Store) TenantCounter(name string) func(ctx context.Context, userID string, role types.Role) (int, error) {
	return func(ctx context.Context, _ string, _ types.Role) (int, error) {
		return s.counter(ctx, s.prefix+"counts:"+name)
	}
}

func (s *Store) counter(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return n, nil
}
