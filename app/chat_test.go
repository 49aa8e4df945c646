package simpchat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJorjinio/simpchat-go/core"
)

func TestOpenChat(t *testing.T) {
	api := &mockAPI{
		chatPages: [][]core.Chat{{
			{ID: "c1", Name: "general", MemberIDs: []string{"me", "u2"}},
		}},
		messages: map[string][]core.Message{
			"c1": {{ID: "m1", ChatID: "c1", SenderID: "u2", Content: "hi"}},
		},
	}
	send := &mockGateway{}
	rooms := &mockRooms{}
	c := newTestClient(t, api, send, rooms)

	require.NoError(t, c.RefreshChats(context.Background()))

	view, err := c.OpenChat(context.Background(), "c1")
	require.NoError(t, err)
	defer view.Close()

	assert.Equal(t, []string{"c1"}, rooms.joinedChats())
	require.Len(t, view.Messages(), 1)
	assert.Equal(t, "m1", view.Messages()[0].ID)

	active, ok := c.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, "c1", active.ID)
}

func TestOpenChatNotFound(t *testing.T) {
	c := newTestClient(t, &mockAPI{}, &mockGateway{}, &mockRooms{})

	_, err := c.OpenChat(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrChatNotFound)
}

func TestOpenDirectMessageExistingChat(t *testing.T) {
	api := &mockAPI{
		chatPages: [][]core.Chat{{
			{ID: "c1", Direct: true, MemberIDs: []string{"me", "u2"}},
		}},
		messages: map[string][]core.Message{},
	}
	send := &mockGateway{}
	rooms := &mockRooms{}
	c := newTestClient(t, api, send, rooms)
	require.NoError(t, c.RefreshChats(context.Background()))

	view, err := c.OpenDirectMessage(context.Background(), "u2", "hello again")
	require.NoError(t, err)
	defer view.Close()

	assert.Equal(t, "c1", view.Chat().ID)
	sent := send.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].dest.ChatID())
	assert.Equal(t, "hello again", sent[0].content)
}

func TestOpenDirectMessageMaterializes(t *testing.T) {
	confirmed := core.Chat{
		ID:        "chat9",
		Direct:    true,
		MemberIDs: []string{"me", "u2"},
		CreatedAt: time.Now(),
	}
	api := &mockAPI{
		// no direct chat yet, then the server-confirmed one shows up
		chatPages: [][]core.Chat{nil, {confirmed}},
		messages:  map[string][]core.Message{},
	}
	send := &mockGateway{}
	rooms := &mockRooms{}
	c := newTestClient(t, api, send, rooms)

	var transitions []string
	c.OnActiveChatChanged(func(chat core.Chat) {
		transitions = append(transitions, chat.ID)
	})

	view, err := c.OpenDirectMessage(context.Background(), "u2", "hi there")
	require.NoError(t, err)
	defer view.Close()

	assert.Equal(t, "chat9", view.Chat().ID)

	// the provisional chat was active first, then replaced
	require.Len(t, transitions, 2)
	assert.Equal(t, core.ProvisionalDirectChatID("u2"), transitions[0])
	assert.Equal(t, "chat9", transitions[1])

	sent := send.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "u2", sent[0].dest.UserID())
	assert.Empty(t, sent[0].dest.ChatID())
	assert.Equal(t, "hi there", sent[0].content)

	assert.Contains(t, rooms.joinedChats(), "chat9")

	// the provisional entry is gone from the chat list
	_, ok := c.chat(core.ProvisionalDirectChatID("u2"))
	assert.False(t, ok)
	_, ok = c.chat("chat9")
	assert.True(t, ok)
}

func TestOpenDirectMessageReconcileTimeout(t *testing.T) {
	api := &mockAPI{
		// the confirmed chat never shows up
		chatPages: [][]core.Chat{nil},
		messages:  map[string][]core.Message{},
	}
	send := &mockGateway{}
	rooms := &mockRooms{}
	c := newTestClient(t, api, send, rooms)

	view, err := c.OpenDirectMessage(context.Background(), "u2", "anyone there")
	require.ErrorIs(t, err, ErrReconcileTimeout)
	require.NotNil(t, view)
	defer view.Close()

	// the provisional chat stays active so the UI keeps showing the draft
	assert.Equal(t, core.ProvisionalDirectChatID("u2"), view.Chat().ID)
	active, ok := c.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, core.ProvisionalDirectChatID("u2"), active.ID)

	sent := send.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "u2", sent[0].dest.UserID())
}

func TestOpenDirectMessageWithoutFirstMessage(t *testing.T) {
	api := &mockAPI{messages: map[string][]core.Message{}}
	send := &mockGateway{}
	c := newTestClient(t, api, send, &mockRooms{})

	view, err := c.OpenDirectMessage(context.Background(), "u2", "")
	require.NoError(t, err)
	defer view.Close()

	// nothing was sent, so there is nothing to reconcile
	assert.Equal(t, core.ProvisionalDirectChatID("u2"), view.Chat().ID)
	assert.Empty(t, send.sentMessages())
}

func TestProvisionalViewSendAddressesCounterparty(t *testing.T) {
	confirmed := core.Chat{
		ID:        "chat9",
		Direct:    true,
		MemberIDs: []string{"me", "u2"},
		CreatedAt: time.Now(),
	}
	api := &mockAPI{
		chatPages: [][]core.Chat{nil, {confirmed}},
		messages:  map[string][]core.Message{},
	}
	send := &mockGateway{}
	rooms := &mockRooms{}
	c := newTestClient(t, api, send, rooms)

	view, err := c.OpenDirectMessage(context.Background(), "u2", "")
	require.NoError(t, err)
	defer view.Close()
	require.Empty(t, send.sentMessages())

	require.NoError(t, view.Send(context.Background(), "typed later", ""))

	// the sentinel chat ID never reaches the wire
	sent := send.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "u2", sent[0].dest.UserID())
	assert.Empty(t, sent[0].dest.ChatID())

	// the confirmed chat takes over the view in the background
	require.True(t, waitFor(2*time.Second, func() bool {
		active, ok := c.ActiveChat()
		return ok && active.ID == "chat9"
	}))
	assert.Equal(t, "chat9", view.Chat().ID)
	assert.Contains(t, rooms.joinedChats(), "chat9")
	_, ok := c.chat(core.ProvisionalDirectChatID("u2"))
	assert.False(t, ok)

	// subsequent sends address the confirmed chat
	require.NoError(t, view.Send(context.Background(), "again", ""))
	sent = send.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "chat9", sent[1].dest.ChatID())
}

func TestRefreshChatsKeepsProvisional(t *testing.T) {
	api := &mockAPI{
		chatPages: [][]core.Chat{
			{{ID: "c1", Name: "general"}},
			{{ID: "c2", Name: "random"}},
		},
	}
	c := newTestClient(t, api, &mockGateway{}, &mockRooms{})

	require.NoError(t, c.RefreshChats(context.Background()))
	c.storeChat(core.NewProvisionalDirectChat("me", "u2"))

	require.NoError(t, c.RefreshChats(context.Background()))

	_, ok := c.chat("c1")
	assert.False(t, ok, "stale server chat is replaced by the reload")
	_, ok = c.chat("c2")
	assert.True(t, ok)
	_, ok = c.chat(core.ProvisionalDirectChatID("u2"))
	assert.True(t, ok, "provisional chat survives the reload")
}

func TestChatViewFlushesReceiptsThroughGateway(t *testing.T) {
	api := &mockAPI{
		chatPages: [][]core.Chat{{
			{ID: "c1", MemberIDs: []string{"me", "u2"}},
		}},
		messages: map[string][]core.Message{
			"c1": {
				{ID: "m1", ChatID: "c1", SenderID: "u2", Unseen: true, NotificationID: strPtr("n1")},
				{ID: "m2", ChatID: "c1", SenderID: "me", Unseen: false},
			},
		},
	}
	send := &mockGateway{}
	c := newTestClient(t, api, send, &mockRooms{})
	require.NoError(t, c.RefreshChats(context.Background()))

	view, err := c.OpenChat(context.Background(), "c1")
	require.NoError(t, err)

	view.MessageVisible("m1")
	view.MessageVisible("m2")
	view.Close()

	batches := send.seenBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"n1"}, batches[0])
}

func TestChatViewSend(t *testing.T) {
	api := &mockAPI{
		chatPages: [][]core.Chat{{{ID: "c1"}}},
		messages:  map[string][]core.Message{},
	}
	send := &mockGateway{}
	c := newTestClient(t, api, send, &mockRooms{})
	require.NoError(t, c.RefreshChats(context.Background()))

	view, err := c.OpenChat(context.Background(), "c1")
	require.NoError(t, err)
	defer view.Close()

	require.NoError(t, view.Send(context.Background(), "ping", "m0"))
	sent := send.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].dest.ChatID())
	assert.Equal(t, "m0", sent[0].replyToID)
}

func strPtr(s string) *string {
	return &s
}
