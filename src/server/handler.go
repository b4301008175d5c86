package server

import (
	"context"
	"errors"

	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

// dispatch routes one inbound envelope by its declared type. Malformed or
// unknown messages yield an error event back to the sender only; they never
// terminate the connection.
func (s *Server) dispatch(ctx context.Context, c *hub.Client, msg types.Message) {
	switch msg.Type {
	case types.TypeJoin:
		if msg.ChannelID == "" {
			c.TrySend(types.ErrorEvent("join requires channelId"))
			return
		}
		if err := s.bc.Join(ctx, msg.ChannelID, c); err != nil {
			if errors.Is(err, hub.ErrNotAMember) {
				c.TrySend(types.ErrorEvent("not a member of channel"))
				return
			}
			s.logger.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("join failed")
			c.TrySend(types.ErrorEvent("could not join channel"))
		}

	case types.TypeLeave:
		if msg.ChannelID == "" {
			c.TrySend(types.ErrorEvent("leave requires channelId"))
			return
		}
		s.bc.Leave(msg.ChannelID, c)

	case types.TypeMessage:
		if msg.ChannelID == "" || msg.Content == "" {
			c.TrySend(types.ErrorEvent("message requires channelId and content"))
			return
		}
		if err := s.bc.SendChat(ctx, msg.ChannelID, msg.Content, c); err != nil {
			s.logger.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("chat message failed")
			c.TrySend(types.ErrorEvent("message could not be delivered"))
		}

	case types.TypeTyping:
		if msg.ChannelID == "" {
			c.TrySend(types.ErrorEvent("typing requires channelId"))
			return
		}
		s.bc.Typing(msg.ChannelID, c)

	case types.TypeRead:
		if msg.ChannelID == "" || msg.MessageID == "" {
			c.TrySend(types.ErrorEvent("read requires channelId and messageId"))
			return
		}
		if err := s.bc.MarkRead(ctx, msg.ChannelID, msg.MessageID, c); err != nil {
			s.logger.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("read receipt failed")
			c.TrySend(types.ErrorEvent("could not record read receipt"))
		}

	case types.TypeSubscribe:
		c.SetSubscribed(true)
		counts := s.agg.Snapshot(ctx, c.UserID(), c.Role(), nil)
		c.TrySend(types.NotificationCounts(counts, nil))

	case types.TypeUnsubscribe:
		c.SetSubscribed(false)

	default:
		c.TrySend(types.ErrorEvent("unknown message type"))
	}
}
