package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/MrJorjinio/simpchat-go/core"
)

// ListChats returns every chat the current user is a member of.
func (c *Client) ListChats(ctx context.Context) ([]core.Chat, error) {
	var chats []core.Chat
	if err := c.get(ctx, "/chats", &chats); err != nil {
		return nil, fmt.Errorf("ListChats: %w", err)
	}
	return chats, nil
}

// GetChat returns a single chat by ID.
func (c *Client) GetChat(ctx context.Context, chatID string) (core.Chat, error) {
	var chat core.Chat
	if err := c.get(ctx, "/chats/"+url.PathEscape(chatID), &chat); err != nil {
		return core.Chat{}, fmt.Errorf("GetChat: %w", err)
	}
	return chat, nil
}

// ListMessages returns up to limit messages of a chat, newest first. A zero
// limit leaves paging to the server default.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) ([]core.Message, error) {
	path := "/chats/" + url.PathEscape(chatID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var messages []core.Message
	if err := c.get(ctx, path, &messages); err != nil {
		return nil, fmt.Errorf("ListMessages: %w", err)
	}
	return messages, nil
}

// ListNotifications returns the current user's unseen-message notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]core.Notification, error) {
	var notifications []core.Notification
	if err := c.get(ctx, "/notifications", &notifications); err != nil {
		return nil, fmt.Errorf("ListNotifications: %w", err)
	}
	return notifications, nil
}
