// Package simpchat ties the REST client, the realtime hub connection and the
// read-receipt batcher together into one chat client.
package simpchat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/MrJorjinio/simpchat-go/api"
	"github.com/MrJorjinio/simpchat-go/core"
	"github.com/MrJorjinio/simpchat-go/hub"
	"github.com/MrJorjinio/simpchat-go/receipts"
)

const defaultMessagePage = 50

// chatAPI is the slice of the REST client the facade depends on.
type chatAPI interface {
	ListChats(ctx context.Context) ([]core.Chat, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]core.Message, error)
}

// gateway is the slice of the hub action gateway the facade depends on.
type gateway interface {
	SendMessage(ctx context.Context, dest core.Destination, content, replyToID string) error
	MarkSeen(ctx context.Context, notificationIDs []string) error
}

// roomTracker is the slice of the room membership tracker the facade depends on.
type roomTracker interface {
	Join(ctx context.Context, chatID string) error
	Leave(ctx context.Context, chatID string) error
}

// Client is the application-level chat client. The hub connection is owned
// and injected here, not a package-level singleton.
type Client struct {
	config   *Config
	logger   *slog.Logger
	identity *core.Identity

	api     chatAPI
	send    gateway
	rooms   roomTracker
	hubc    *hub.Client
	actions *hub.Actions

	mu             sync.RWMutex
	chats          map[string]core.Chat
	active         core.Chat
	hasActive      bool
	onActiveChange func(core.Chat)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		if msg := FormatValidationErrors(err); msg != "" {
			return nil, fmt.Errorf("invalid config: %s", msg)
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	identity, err := core.IdentityFromToken(config.Token)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	client := &Client{
		config:   config,
		identity: identity,
		chats:    make(map[string]core.Chat),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.logger == nil {
		client.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.SourceKey {
					source, _ := a.Value.Any().(*slog.Source)
					if source != nil {
						source.File = filepath.Base(source.File)
					}
				}
				return a
			},
		}))
	}

	client.api = api.New(config.ServerURL, config.Token,
		api.WithTimeout(config.CallTimeout),
		api.WithLogger(client.logger))

	client.hubc = hub.New(config.HubURL, config.Token,
		hub.WithLogger(client.logger),
		hub.WithCallTimeout(config.CallTimeout),
		hub.WithReconnectPolicy(hub.ReconnectPolicy{
			MaxAttempts: config.Reconnect.MaxAttempts,
			BaseDelay:   config.Reconnect.BaseDelay,
			MaxDelay:    config.Reconnect.MaxDelay,
		}))
	client.actions = hub.NewActions(client.hubc)
	client.send = client.actions
	client.rooms = client.hubc.Rooms()

	return client, nil
}

// Identity returns the current user as derived from the bearer token.
func (c *Client) Identity() core.Identity {
	return *c.identity
}

// Hub exposes the underlying hub connection for subscriptions and state
// observation.
func (c *Client) Hub() *hub.Client {
	return c.hubc
}

// Actions exposes the full typed action gateway.
func (c *Client) Actions() *hub.Actions {
	return c.actions
}

// Connect establishes the hub connection and loads the chat list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.hubc.Start(ctx); err != nil {
		return fmt.Errorf("connect hub: %w", err)
	}
	if err := c.RefreshChats(ctx); err != nil {
		return err
	}
	return nil
}

// Close tears down the hub connection.
func (c *Client) Close() {
	c.hubc.Stop()
}

// RefreshChats reloads the chat list from the backend. Provisional chats the
// client synthesized locally survive the reload.
func (c *Client) RefreshChats(ctx context.Context) error {
	chats, err := c.api.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, chat := range c.chats {
		if !chat.Provisional() {
			delete(c.chats, id)
		}
	}
	for _, chat := range chats {
		c.chats[chat.ID] = chat
	}
	return nil
}

// Chats returns a snapshot of the loaded chat list, newest first.
func (c *Client) Chats() []core.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chats := make([]core.Chat, 0, len(c.chats))
	for _, chat := range c.chats {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats
}

// ActiveChat returns the currently selected chat, if any.
func (c *Client) ActiveChat() (core.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.hasActive
}

// OnActiveChatChanged registers an observer for active chat selection,
// including the provisional-to-confirmed replacement.
func (c *Client) OnActiveChatChanged(f func(core.Chat)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onActiveChange = f
}

func (c *Client) setActive(chat core.Chat) {
	c.mu.Lock()
	c.active = chat
	c.hasActive = true
	notify := c.onActiveChange
	c.mu.Unlock()
	if notify != nil {
		notify(chat)
	}
}

func (c *Client) storeChat(chat core.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chat.ID] = chat
}

func (c *Client) dropChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chats, chatID)
}

func (c *Client) chat(chatID string) (core.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[chatID]
	return chat, ok
}

// OpenChat joins the chat room, loads its recent messages and makes it the
// active selection. The returned view owns the read-receipt batcher; Close it
// when the chat leaves the screen.
func (c *Client) OpenChat(ctx context.Context, chatID string) (*ChatView, error) {
	chat, ok := c.chat(chatID)
	if !ok {
		return nil, core.ErrChatNotFound
	}
	if err := c.rooms.Join(ctx, chatID); err != nil {
		return nil, err
	}
	messages, err := c.api.ListMessages(ctx, chatID, defaultMessagePage)
	if err != nil {
		return nil, err
	}
	view := c.newView(chat, messages)
	c.setActive(chat)
	return view, nil
}

func (c *Client) newView(chat core.Chat, messages []core.Message) *ChatView {
	view := &ChatView{
		client:   c,
		chat:     chat,
		messages: messages,
	}
	view.batcher = receipts.New(chat.ID, c.identity.UserID, view.lookupMessage, c.send.MarkSeen,
		receipts.WithLogger(c.logger),
		receipts.WithInterval(c.config.Receipts.Debounce),
		receipts.WithFlushRetry(receipts.FlushRetry{
			BaseDelay:   c.config.Receipts.RetryBaseDelay,
			MaxDelay:    c.config.Receipts.RetryMaxDelay,
			MaxAttempts: c.config.Receipts.RetryAttempts,
		}))
	return view
}

// ChatView is one open chat on screen: the live message list plus the
// read-receipt batcher observing it.
type ChatView struct {
	client  *Client
	chat    core.Chat
	batcher *receipts.Batcher

	mu       sync.RWMutex
	messages []core.Message
}

func (v *ChatView) Chat() core.Chat {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.chat
}

// Messages returns a snapshot of the view's message list.
func (v *ChatView) Messages() []core.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]core.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Append adds a newly arrived message to the view. The batcher sees it
// through the lookup callback, so no re-subscription happens.
func (v *ChatView) Append(msg core.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, msg)
}

// MessageVisible reports that a rendered message crossed the visibility
// threshold.
func (v *ChatView) MessageVisible(messageID string) {
	v.batcher.MessageVisible(messageID)
}

// Send sends a message to this chat. While the chat is still provisional the
// message is addressed to the counterparty user, since the sentinel ID means
// nothing to the server, and reconciliation runs in the background until the
// confirmed chat takes over the view.
func (v *ChatView) Send(ctx context.Context, content, replyToID string) error {
	chat := v.Chat()
	if !chat.Provisional() {
		return v.client.send.SendMessage(ctx, core.ToChat(chat.ID), content, replyToID)
	}

	userID, ok := chat.Counterparty(v.client.identity.UserID)
	if !ok {
		return core.ErrInvalidDestination
	}
	if err := v.client.send.SendMessage(ctx, core.ToUser(userID), content, replyToID); err != nil {
		return err
	}
	go v.adoptConfirmed(context.Background(), userID)
	return nil
}

// adoptConfirmed swaps the provisional chat for the server-confirmed one in
// place once it shows up, keeping this view and its batcher alive.
func (v *ChatView) adoptConfirmed(ctx context.Context, userID string) {
	found, err := v.client.pollDirectChat(ctx, userID)
	if err != nil {
		v.client.logger.Warn(fmt.Sprintf("adopt confirmed chat: %v", err),
			slog.String("user.id", userID))
		return
	}
	v.client.dropChat(core.ProvisionalDirectChatID(userID))
	if err := v.client.rooms.Join(ctx, found.ID); err != nil {
		v.client.logger.Warn(fmt.Sprintf("join confirmed chat: %v", err),
			slog.String("chat.id", found.ID))
	}
	v.mu.Lock()
	v.chat = found
	v.mu.Unlock()
	v.client.setActive(found)
}

// Close flushes pending read receipts and releases the view. The client
// stays joined to the room so chat list updates keep arriving.
func (v *ChatView) Close() {
	v.batcher.Close()
}

func (v *ChatView) lookupMessage(messageID string) (core.Message, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, m := range v.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return core.Message{}, false
}
