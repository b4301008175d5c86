package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// ErrNotAMember is returned by Join when the membership authority denies
// the user access to the channel. No index mutation happens on denial.
var ErrNotAMember = errors.New("not a member of channel")

// Membership is the channel-membership authority consumed by this core.
// Membership data is owned by the surrounding application.
type Membership interface {
	IsChannelMember(ctx context.Context, channelID, userID string) (bool, error)
	QuietHours(ctx context.Context, channelID string) (types.QuietHours, error)
}

// MessageStore durably records chat messages and read markers.
type MessageStore interface {
	PersistMessage(ctx context.Context, channelID, senderID, content string) (types.StoredMessage, error)
	RecordRead(ctx context.Context, channelID, userID, messageID string) error
}

// Broadcaster owns channel fan-out: membership-checked joins, leaves,
// best-effort event delivery, and the chat persist-then-broadcast path.
type Broadcaster struct {
	registry   *Registry
	membership Membership
	store      MessageStore
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, membership Membership, store MessageStore, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:   registry,
		membership: membership,
		store:      store,
		now:        time.Now,
		logger:     logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Join indexes the connection under the channel after the membership
// authority confirms access, then announces the join to the other members.
// The joining connection does not receive its own join event.
func (b *Broadcaster) Join(ctx context.Context, channelID string, c *Client) error {
	ok, err := b.membership.IsChannelMember(ctx, channelID, c.UserID())
	if err != nil {
		return fmt.Errorf("membership check for channel %s: %w", channelID, err)
	}
	if !ok {
		return ErrNotAMember
	}

	b.registry.AddToChannel(channelID, c)
	c.trackJoin(channelID)
	b.Publish(channelID, types.UserJoined(channelID, c.UserID()), c)
	return nil
}

// Leave unconditionally removes the channel index entry and announces the
// departure to the remaining members.
func (b *Broadcaster) Leave(channelID string, c *Client) {
	if !b.registry.RemoveFromChannel(channelID, c) {
		return
	}
	c.trackLeave(channelID)
	b.Publish(channelID, types.UserLeft(channelID, c.UserID()), nil)
}

// Publish delivers an event to every connection currently indexed under the
// channel, except exclude. Delivery is best-effort and non-blocking per
// recipient; an unwritable transport is skipped silently.
func (b *Broadcaster) Publish(channelID string, ev types.Event, exclude *Client) {
	b.registry.ForChannel(channelID, func(c *Client) {
		if c == exclude {
			return
		}
		c.TrySend(ev)
	})
}

// SendChat persists a chat message and broadcasts it to all channel members,
// the sender included. Persistence failure aborts the broadcast. When the
// channel's quiet hours are active the sender gets a warning, but the
// message still goes out: quiet hours mute notification emphasis, not
// delivery.
func (b *Broadcaster) SendChat(ctx context.Context, channelID, content string, c *Client) error {
	msg, err := b.store.PersistMessage(ctx, channelID, c.UserID(), content)
	if err != nil {
		return fmt.Errorf("persist message in channel %s: %w", channelID, err)
	}

	qh, err := b.membership.QuietHours(ctx, channelID)
	if err != nil {
		b.logger.Warn().Err(err).Str("channel_id", channelID).Msg("quiet hours lookup failed")
	} else if qh.Contains(b.now().Hour()) {
		c.TrySend(types.WarningEvent("channel is in quiet hours: message delivered, notifications muted"))
	}

	b.Publish(channelID, types.NewMessage(channelID, msg), nil)
	return nil
}

// Typing relays a typing indicator to the other channel members.
func (b *Broadcaster) Typing(channelID string, c *Client) {
	b.Publish(channelID, types.UserTyping(channelID, c.UserID()), c)
}

// MarkRead records the member's last-read marker via the message store.
func (b *Broadcaster) MarkRead(ctx context.Context, channelID, messageID string, c *Client) error {
	if err := b.store.RecordRead(ctx, channelID, c.UserID(), messageID); err != nil {
		return fmt.Errorf("record read in channel %s: %w", channelID, err)
	}
	return nil
}

// Drop tears a connection down: it is removed from every registry index, a
// user_left is emitted to each channel it belonged to, and the transport is
// closed. Safe to call more than once; only the first call emits events.
func (b *Broadcaster) Drop(c *Client) {
	channels := b.registry.RemoveFromAll(c)
	for _, channelID := range channels {
		b.Publish(channelID, types.UserLeft(channelID, c.UserID()), nil)
	}
	c.Close()
	if channels != nil {
		b.logger.Info().
			Str("conn_id", c.ID()).
			Str("user_id", c.UserID()).
			Dur("connected_for", time.Since(c.ConnectedAt())).
			Msg("connection dropped")
	}
}
