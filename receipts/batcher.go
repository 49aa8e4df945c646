// Package receipts batches "mark as seen" calls for messages that scroll
// into view. Per-message immediate calls would flood the network while a user
// scrolls a backlog; a debounce window amortizes a burst of newly visible
// messages into one batched call, and a memo set guarantees at-most-once
// processing per message per view lifetime.
package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/sethvargo/go-retry"

	"github.com/MrJorjinio/simpchat-go/core"
)

// LookupFunc resolves a message ID against the live message list. The
// batcher holds the list by reference through this callback, so appending
// messages needs no re-subscription.
type LookupFunc func(messageID string) (core.Message, bool)

// MarkFunc flushes a batch of notification IDs to the server.
type MarkFunc func(ctx context.Context, notificationIDs []string) error

// FlushRetry bounds the retry loop for a failed flush.
type FlushRetry struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts uint64
}

var DefaultFlushRetry = FlushRetry{
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	MaxAttempts: 3,
}

// Batcher collects read receipts for one open chat view. Create one on view
// mount, feed it MessageVisible as rendered messages cross the visibility
// threshold, and Close it on unmount.
type Batcher struct {
	chatID string
	selfID string
	lookup LookupFunc
	mark   MarkFunc
	logger *slog.Logger

	interval  time.Duration
	debounced func(func())
	flushWait sync.WaitGroup
	retry     FlushRetry
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	memo    map[string]struct{}
	pending map[string]struct{}
	closed  bool
}

type Option func(*Batcher)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		b.logger = logger
	}
}

// WithInterval sets the debounce window. The default is 500ms.
func WithInterval(d time.Duration) Option {
	return func(b *Batcher) {
		b.interval = d
	}
}

func WithFlushRetry(r FlushRetry) Option {
	return func(b *Batcher) {
		b.retry = r
	}
}

// WithContext scopes flush calls to the given parent context.
func WithContext(ctx context.Context) Option {
	return func(b *Batcher) {
		b.ctx, b.cancel = context.WithCancel(ctx)
	}
}

func New(chatID, selfID string, lookup LookupFunc, mark MarkFunc, opts ...Option) *Batcher {
	b := &Batcher{
		chatID:   chatID,
		selfID:   selfID,
		lookup:   lookup,
		mark:     mark,
		logger:   slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})),
		interval: 500 * time.Millisecond,
		retry:    DefaultFlushRetry,
		memo:     make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.ctx == nil {
		b.ctx, b.cancel = context.WithCancel(context.Background())
	}
	b.debounced = debounce.New(b.interval)
	return b
}

// MessageVisible records that a rendered message crossed the visibility
// threshold. Repeated calls for the same message are no-ops: each message is
// processed at most once per view lifetime, eligible or not. Eligible
// messages (authored by someone else, still unseen, carrying a notification
// ID) are queued and the debounce window is re-armed.
func (b *Batcher) MessageVisible(messageID string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, done := b.memo[messageID]; done {
		b.mu.Unlock()
		return
	}
	b.memo[messageID] = struct{}{}

	msg, ok := b.lookup(messageID)
	if !ok || msg.SenderID == b.selfID || !msg.Unseen || msg.NotificationID == nil {
		b.mu.Unlock()
		return
	}
	b.pending[*msg.NotificationID] = struct{}{}
	b.mu.Unlock()

	b.debounced(b.flushAsync)
}

// Pending returns the number of notification IDs waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close cancels the debounce window and synchronously flushes whatever is
// still pending, so switching chats mid-window cannot drop read receipts.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.flush()
	b.flushWait.Wait()
	b.cancel()
}

func (b *Batcher) flushAsync() {
	b.flushWait.Add(1)
	go func() {
		defer b.flushWait.Done()
		b.flush()
	}()
}

// flush snapshots and clears the pending set, then marks the batch seen. A
// transient failure retries with capped backoff; only after the attempt
// budget is spent is the batch dropped and logged.
func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.pending = make(map[string]struct{})
	b.mu.Unlock()

	backoff := retry.WithMaxRetries(b.retry.MaxAttempts,
		retry.WithCappedDuration(b.retry.MaxDelay, retry.NewExponential(b.retry.BaseDelay)))
	err := retry.Do(b.ctx, backoff, func(ctx context.Context) error {
		if err := b.mark(ctx, ids); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		b.logger.Error(fmt.Sprintf("flush read receipts: %v", err),
			slog.String("chat.id", b.chatID), slog.Int("batch.size", len(ids)))
		return
	}
	b.logger.Debug("flushed read receipts",
		slog.String("chat.id", b.chatID), slog.Int("batch.size", len(ids)))
}
