package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MrJorjinio/simpchat-go/core"
)

// Server-invokable action names.
const (
	ActionJoinChat          = "JoinChat"
	ActionLeaveChat         = "LeaveChat"
	ActionSendMessage       = "SendMessage"
	ActionEditMessage       = "EditMessage"
	ActionDeleteMessage     = "DeleteMessage"
	ActionAddReaction       = "AddReaction"
	ActionRemoveReaction    = "RemoveReaction"
	ActionTyping            = "Typing"
	ActionStopTyping        = "StopTyping"
	ActionMarkAsSeen        = "MarkAsSeen"
	ActionGetPresenceStates = "GetPresenceStates"
)

type sendMessageBody struct {
	ChatID    string `json:"chat_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Content   string `json:"content"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

type editMessageBody struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type messageIDBody struct {
	MessageID string `json:"message_id"`
}

type reactionBody struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type chatIDBody struct {
	ChatID string `json:"chat_id"`
}

type markAsSeenBody struct {
	NotificationIDs []string `json:"notification_ids"`
}

type presenceStatesBody struct {
	UserIDs []string `json:"user_ids"`
}

// Actions exposes the typed remote invocations the hub accepts. Every call
// checks connection state first and fails fast with ErrNotConnected instead
// of queuing or retrying.
type Actions struct {
	client invoker
	logger *slog.Logger
}

func NewActions(client *Client) *Actions {
	return &Actions{client: client, logger: client.logger}
}

// SendMessage sends a message either to an existing chat or to a counterparty
// user that has no chat yet, per the destination.
func (a *Actions) SendMessage(ctx context.Context, dest core.Destination, content, replyToID string) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	body := sendMessageBody{
		ChatID:    dest.ChatID(),
		UserID:    dest.UserID(),
		Content:   content,
		ReplyToID: replyToID,
	}
	_, err := a.client.invoke(ctx, ActionSendMessage, body)
	return err
}

func (a *Actions) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := a.client.invoke(ctx, ActionEditMessage, editMessageBody{MessageID: messageID, Content: content})
	return err
}

func (a *Actions) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := a.client.invoke(ctx, ActionDeleteMessage, messageIDBody{MessageID: messageID})
	return err
}

func (a *Actions) AddReaction(ctx context.Context, messageID, emoji string) error {
	_, err := a.client.invoke(ctx, ActionAddReaction, reactionBody{MessageID: messageID, Emoji: emoji})
	return err
}

func (a *Actions) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	_, err := a.client.invoke(ctx, ActionRemoveReaction, reactionBody{MessageID: messageID, Emoji: emoji})
	return err
}

// Typing is fire-and-forget: failures are logged, never surfaced.
func (a *Actions) Typing(ctx context.Context, chatID string) {
	if _, err := a.client.invoke(ctx, ActionTyping, chatIDBody{ChatID: chatID}); err != nil {
		a.logger.Debug(fmt.Sprintf("%s: %v", ActionTyping, err))
	}
}

// StopTyping is fire-and-forget: failures are logged, never surfaced.
func (a *Actions) StopTyping(ctx context.Context, chatID string) {
	if _, err := a.client.invoke(ctx, ActionStopTyping, chatIDBody{ChatID: chatID}); err != nil {
		a.logger.Debug(fmt.Sprintf("%s: %v", ActionStopTyping, err))
	}
}

// MarkSeen flushes a batch of notification IDs. It is meant to be driven by
// the read-receipt batcher, one call per burst, not per message.
func (a *Actions) MarkSeen(ctx context.Context, notificationIDs []string) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	_, err := a.client.invoke(ctx, ActionMarkAsSeen, markAsSeenBody{NotificationIDs: notificationIDs})
	return err
}

// PresenceStates queries the online state of the given users.
func (a *Actions) PresenceStates(ctx context.Context, userIDs []string) ([]core.PresenceState, error) {
	raw, err := a.client.invoke(ctx, ActionGetPresenceStates, presenceStatesBody{UserIDs: userIDs})
	if err != nil {
		return nil, err
	}
	var states []core.PresenceState
	if err := json.Unmarshal(raw, &states); err != nil {
		return nil, fmt.Errorf("unmarshal presence states: %w", err)
	}
	return states, nil
}
