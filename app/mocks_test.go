package simpchat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrJorjinio/simpchat-go/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockAPI serves scripted ListChats responses, one per call, repeating the
// last one once the script runs out.
type mockAPI struct {
	mu           sync.Mutex
	chatPages    [][]core.Chat
	chatCalls    int
	messages     map[string][]core.Message
	listChatsErr error
}

func (m *mockAPI) ListChats(_ context.Context) ([]core.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listChatsErr != nil {
		return nil, m.listChatsErr
	}
	if len(m.chatPages) == 0 {
		return nil, nil
	}
	i := m.chatCalls
	if i >= len(m.chatPages) {
		i = len(m.chatPages) - 1
	}
	m.chatCalls++
	return m.chatPages[i], nil
}

func (m *mockAPI) ListMessages(_ context.Context, chatID string, _ int) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[chatID], nil
}

type sentMessage struct {
	dest      core.Destination
	content   string
	replyToID string
}

// mockGateway records outgoing messages and read-receipt batches.
type mockGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	seen    [][]string
	sendErr error
}

func (m *mockGateway) SendMessage(_ context.Context, dest core.Destination, content, replyToID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{dest: dest, content: content, replyToID: replyToID})
	return nil
}

func (m *mockGateway) MarkSeen(_ context.Context, notificationIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]string, len(notificationIDs))
	copy(batch, notificationIDs)
	m.seen = append(m.seen, batch)
	return nil
}

func (m *mockGateway) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockGateway) seenBatches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.seen))
	copy(out, m.seen)
	return out
}

// mockRooms records joins and leaves.
type mockRooms struct {
	mu      sync.Mutex
	joined  []string
	left    []string
	joinErr error
}

func (m *mockRooms) Join(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joined = append(m.joined, chatID)
	return nil
}

func (m *mockRooms) Leave(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, chatID)
	return nil
}

func (m *mockRooms) joinedChats() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.joined))
	copy(out, m.joined)
	return out
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// newTestClient builds a facade around mocks with timing parameters tightened
// for tests.
func newTestClient(t *testing.T, api *mockAPI, send *mockGateway, rooms *mockRooms) *Client {
	t.Helper()
	config, err := (&DefaultConfigLoader{}).Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	config.Receipts.Debounce = 20 * time.Millisecond
	config.Receipts.RetryBaseDelay = 5 * time.Millisecond
	config.Receipts.RetryMaxDelay = 20 * time.Millisecond
	config.Reconcile.Timeout = 500 * time.Millisecond
	config.Reconcile.Poll = 20 * time.Millisecond

	return &Client{
		config:   config,
		logger:   testLogger(),
		identity: &core.Identity{UserID: "me", Username: "me"},
		api:      api,
		send:     send,
		rooms:    rooms,
		chats:    make(map[string]core.Chat),
	}
}
