package hub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrJorjinio/simpchat-go/core"
)

type joinChatBody struct {
	ChatID string `json:"chat_id"`
}

// Rooms tracks which chats the client has joined. The set is a cache of a
// server-side fact: it can be stale after a drop until replay resynchronizes
// it on reconnect.
type Rooms struct {
	client  invoker
	members *core.SyncSet[string]
	logger  *slog.Logger
}

func newRooms(client invoker, logger *slog.Logger) *Rooms {
	return &Rooms{
		client:  client,
		members: core.NewSyncSet[string](),
		logger:  logger,
	}
}

// Join joins a chat room. The chat is recorded in the membership set only
// when the remote call succeeds.
func (r *Rooms) Join(ctx context.Context, chatID string) error {
	if _, err := r.client.invoke(ctx, ActionJoinChat, joinChatBody{ChatID: chatID}); err != nil {
		return fmt.Errorf("%s: %w", ActionJoinChat, err)
	}
	r.members.Add(chatID)
	return nil
}

// Leave leaves a chat room. The chat is removed from the membership set
// regardless of the remote call outcome.
func (r *Rooms) Leave(ctx context.Context, chatID string) error {
	r.members.Remove(chatID)
	if _, err := r.client.invoke(ctx, ActionLeaveChat, joinChatBody{ChatID: chatID}); err != nil {
		return fmt.Errorf("%s: %w", ActionLeaveChat, err)
	}
	return nil
}

// Joined reports whether the client believes it is a member of the chat.
func (r *Rooms) Joined(chatID string) bool {
	return r.members.Has(chatID)
}

// Members returns a snapshot of the membership set.
func (r *Rooms) Members() []string {
	return r.members.Values()
}

// replay re-joins every room in the membership set sequentially. A failure to
// rejoin one room is logged and does not abort the rest.
func (r *Rooms) replay(ctx context.Context) {
	for _, chatID := range r.members.Values() {
		if _, err := r.client.invoke(ctx, ActionJoinChat, joinChatBody{ChatID: chatID}); err != nil {
			r.logger.Error(fmt.Sprintf("rejoin: %v", err), slog.String("chat.id", chatID))
		}
	}
}
