package types

import (
	"fmt"
	"time"
)

// Role is the coarse authorization role snapshotted at handshake time.
// It is resolved once from the session store and never refreshed for the
// life of a connection.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// ParseRole maps a stored role string onto the explicit role set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleMember:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Message is the client-to-server envelope. Exactly one Type per message;
// which of the remaining fields are required depends on the type.
type Message struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Client-to-server message types.
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeRead        = "read"
	TypeSubscribe   = "subscribe_notifications"
	TypeUnsubscribe = "unsubscribe_notifications"
)

// Event is the server-to-client envelope. Message carries either an error
// or warning text, or a StoredMessage for new_message events.
type Event struct {
	Type          string         `json:"type"`
	ChannelID     string         `json:"channelId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	Message       any            `json:"message,omitempty"`
	Counts        map[string]int `json:"counts,omitempty"`
	AffectedTypes []string       `json:"affectedTypes,omitempty"`
}

// Server-to-client event types.
const (
	EventAuthenticated      = "authenticated"
	EventError              = "error"
	EventWarning            = "warning"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventNewMessage         = "new_message"
	EventUserTyping         = "user_typing"
	EventNotificationCounts = "notification_counts"
)

// Authenticated is sent once after a successful handshake.
func Authenticated(userID string) Event {
	return Event{Type: EventAuthenticated, UserID: userID}
}

// ErrorEvent reports a non-fatal protocol or collaborator failure to the
// sending connection only.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

// WarningEvent reports a condition that did not prevent the action, such as
// quiet-hours notification muting.
func WarningEvent(msg string) Event {
	return Event{Type: EventWarning, Message: msg}
}

// UserJoined announces a new channel member to the other members.
func UserJoined(channelID, userID string) Event {
	return Event{Type: EventUserJoined, ChannelID: channelID, UserID: userID}
}

// UserLeft announces a departed channel member to the remaining members.
func UserLeft(channelID, userID string) Event {
	return Event{Type: EventUserLeft, ChannelID: channelID, UserID: userID}
}

// NewMessage carries a persisted chat message to channel members.
func NewMessage(channelID string, msg StoredMessage) Event {
	return Event{Type: EventNewMessage, ChannelID: channelID, Message: msg}
}

// UserTyping relays a typing indicator, excluding the typist.
func UserTyping(channelID, userID string) Event {
	return Event{Type: EventUserTyping, ChannelID: channelID, UserID: userID}
}

// NotificationCounts delivers a per-user counter snapshot.
func NotificationCounts(counts map[string]int, affectedTypes []string) Event {
	return Event{Type: EventNotificationCounts, Counts: counts, AffectedTypes: affectedTypes}
}

// StoredMessage is a chat message as durably recorded by the message store.
type StoredMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuietHours is a channel's time-of-day window during which chat
// notifications are muted. The window may wrap midnight (StartHour >
// EndHour). StartHour is inclusive, EndHour exclusive.
type QuietHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"startHour"`
	EndHour   int  `json:"endHour"`
}

// Contains reports whether the given hour of day falls inside the window.
func (q QuietHours) Contains(hour int) bool {
	if !q.Enabled {
		return false
	}
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	WritePing() error
	Close() error
}
