package core

import (
	"encoding/json"
	"fmt"
)

// Client-bound event names pushed by the realtime hub.
const (
	EventUserOnline              = "UserOnline"
	EventUserOffline             = "UserOffline"
	EventReceiveMessage          = "ReceiveMessage"
	EventMessageEdited           = "MessageEdited"
	EventMessageDeleted          = "MessageDeleted"
	EventReactionAdded           = "ReactionAdded"
	EventReactionRemoved         = "ReactionRemoved"
	EventUserTyping              = "UserTyping"
	EventUserStoppedTyping       = "UserStoppedTyping"
	EventNewNotification         = "NewNotification"
	EventNotificationsMarkedSeen = "NotificationsMarkedSeen"
	EventError                   = "Error"
)

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type MessageEditedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type TypingPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type NotificationsSeenPayload struct {
	NotificationIDs []string `json:"notification_ids"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// PresenceState is the answer of a presence query for a single user.
type PresenceState struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// DecodePayload unmarshals an event body into the payload type for its event.
func DecodePayload(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	return nil
}
