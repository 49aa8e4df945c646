package simpchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/MrJorjinio/simpchat-go/core"
)

// ErrReconcileTimeout is returned when the server-confirmed chat for an
// optimistic direct message could not be found before the reconcile timeout.
// The provisional chat stays active; call ReconcileDirectChat to try again.
var ErrReconcileTimeout = errors.New("simpchat: direct chat reconciliation timed out")

// OpenDirectMessage opens a conversation with a counterparty. When no direct
// chat exists yet, a provisional chat becomes the active selection
// immediately, the first message is sent addressed to the user (the server
// creates the real chat as a side effect of accepting it), and the chat list
// is polled until the confirmed chat shows up and replaces the provisional
// one.
func (c *Client) OpenDirectMessage(ctx context.Context, userID, firstMessage string) (*ChatView, error) {
	if chat, ok := c.findDirectChat(userID); ok {
		view, err := c.OpenChat(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		if firstMessage != "" {
			if err := c.send.SendMessage(ctx, core.ToChat(chat.ID), firstMessage, ""); err != nil {
				return view, err
			}
		}
		return view, nil
	}

	provisional := core.NewProvisionalDirectChat(c.identity.UserID, userID)
	c.storeChat(provisional)
	view := c.newView(provisional, nil)
	c.setActive(provisional)

	if firstMessage == "" {
		// nothing sent yet, so the server has nothing to confirm
		return view, nil
	}

	if err := c.send.SendMessage(ctx, core.ToUser(userID), firstMessage, ""); err != nil {
		return view, err
	}

	confirmed, err := c.ReconcileDirectChat(ctx, userID)
	if err != nil {
		return view, err
	}
	view.Close()
	return confirmed, nil
}

// ReconcileDirectChat polls the chat list for a confirmed direct chat with
// the counterparty. On success the provisional chat is dropped and the
// confirmed chat is opened and made active.
func (c *Client) ReconcileDirectChat(ctx context.Context, userID string) (*ChatView, error) {
	found, err := c.pollDirectChat(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.dropChat(core.ProvisionalDirectChatID(userID))
	return c.OpenChat(ctx, found.ID)
}

// pollDirectChat reloads the chat list until a confirmed direct chat with the
// counterparty shows up or the reconcile timeout expires.
func (c *Client) pollDirectChat(ctx context.Context, userID string) (core.Chat, error) {
	backoff := retry.WithMaxDuration(c.config.Reconcile.Timeout,
		retry.NewConstant(c.config.Reconcile.Poll))

	var found core.Chat
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.RefreshChats(ctx); err != nil {
			return retry.RetryableError(err)
		}
		chat, ok := c.findDirectChat(userID)
		if !ok {
			return retry.RetryableError(core.ErrChatNotFound)
		}
		found = chat
		return nil
	})
	if err != nil {
		return core.Chat{}, fmt.Errorf("%w: %v", ErrReconcileTimeout, err)
	}
	return found, nil
}

// findDirectChat locates a confirmed direct chat whose membership includes
// the counterparty. Provisional chats never match.
func (c *Client) findDirectChat(userID string) (core.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, chat := range c.chats {
		if chat.Direct && !chat.Provisional() && chat.HasMember(userID) {
			return chat, true
		}
	}
	return core.Chat{}, false
}
