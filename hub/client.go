package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/MrJorjinio/simpchat-go/core"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ReconnectPolicy bounds the automatic reconnect loop. Delays start at
// BaseDelay, double each attempt and are capped at MaxDelay; after
// MaxAttempts failed attempts the loop gives up and Start must be called
// again explicitly.
type ReconnectPolicy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

var DefaultReconnectPolicy = ReconnectPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

func (p ReconnectPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	b = retry.WithMaxRetries(p.MaxAttempts, b)
	return b
}

// Dialer dials the hub endpoint. It is an interface so tests can intercept
// or fail the dial deterministically.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// Client owns the single persistent connection to the realtime hub. It is an
// explicitly injected dependency of everything that talks to the hub, never a
// package-level singleton: lifecycle and tests stay explicit.
type Client struct {
	url         string
	token       string
	dialer      Dialer
	logger      *slog.Logger
	policy      ReconnectPolicy
	callTimeout time.Duration

	router  *Router
	rooms   *Rooms
	pending *core.SyncMap[string, chan *Packet]

	mu        sync.RWMutex
	state     State
	conn      *wsConn
	manual    bool
	baseCtx   context.Context
	stateSubs []func(State)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

func New(url, token string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		token:       token,
		dialer:      &gorillaDialer{},
		logger:      slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})),
		policy:      DefaultReconnectPolicy,
		callTimeout: 10 * time.Second,
		pending:     core.NewSyncMap[string, chan *Packet](),
		state:       StateDisconnected,
		baseCtx:     context.Background(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.router = NewRouter(c.logger)
	c.rooms = newRooms(c, c.logger)
	return c
}

// Rooms returns the room membership tracker bound to this connection.
func (c *Client) Rooms() *Rooms {
	return c.rooms
}

// Subscribe registers a handler for a client-bound event. Multiple
// subscribers per event coexist; cancel the returned subscription to detach.
func (c *Client) Subscribe(event string, h EventHandler) Subscription {
	return c.router.Subscribe(event, h)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnStateChange registers an observer called after every state transition.
func (c *Client) OnStateChange(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, f)
}

// Start establishes the connection. It is a no-op when already connected or
// connecting. A dial failure is returned to the caller; mid-session drops are
// handled by the automatic reconnect loop instead.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.manual = false
	c.baseCtx = ctx
	c.mu.Unlock()
	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	return nil
}

// Stop tears down the connection and suppresses automatic reconnection.
func (c *Client) Stop() {
	c.mu.Lock()
	c.manual = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.close()
		return
	}
	c.setState(StateDisconnected)
}

func (c *Client) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	wire, err := c.dialer.Dial(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("Dial: %w", err)
	}

	c.mu.Lock()
	if c.manual {
		// Stop was called while the dial was in flight
		c.mu.Unlock()
		wire.Close()
		c.setState(StateDisconnected)
		return nil
	}
	conn := newWSConn(wire, c, c.logger)
	c.conn = conn
	c.mu.Unlock()

	go conn.readLoop()
	go conn.writeLoop()

	c.setState(StateConnected)
	c.rooms.replay(ctx)
	return nil
}

// connLost is called by the read loop when the connection dies. Unless the
// disconnect was manual, it kicks off the reconnect loop.
func (c *Client) connLost(conn *wsConn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	manual := c.manual
	ctx := c.baseCtx
	c.mu.Unlock()

	if manual {
		c.setState(StateDisconnected)
		return
	}

	c.setState(StateReconnecting)
	go c.reconnectLoop(ctx)
}

func (c *Client) reconnectLoop(ctx context.Context) {
	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		c.mu.RLock()
		manual := c.manual
		c.mu.RUnlock()
		if manual {
			return nil
		}
		if err := c.dial(ctx); err != nil {
			c.logger.Warn(fmt.Sprintf("reconnect: %v", err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error(fmt.Sprintf("reconnect: %v: %v", ErrReconnectExhausted, err))
		c.setState(StateDisconnected)
		return
	}
	if c.State() != StateConnected {
		// manual stop raced the reconnect loop
		c.setState(StateDisconnected)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = s
	subs := slices.Clone(c.stateSubs)
	c.mu.Unlock()

	c.logger.Debug("connection state change",
		slog.String("from", old.String()), slog.String("to", s.String()))
	for _, f := range subs {
		f(s)
	}
}

// receive routes an inbound packet: results complete their pending
// invocation, events fan out to subscribers.
func (c *Client) receive(p *Packet) {
	switch p.Kind {
	case KindResult:
		ch, ok := c.pending.Load(p.ID)
		if !ok {
			c.logger.Debug("orphan result", slog.String("id", p.ID))
			return
		}
		select {
		case ch <- p:
		default:
		}
	case KindEvent:
		c.router.dispatch(p.Target, p.Body)
	default:
		c.logger.Debug("dropped packet", slog.String("kind", string(p.Kind)))
	}
}

// invoke performs a remote invocation and waits for the correlated result.
// It fails fast with ErrNotConnected when the connection is not established.
func (c *Client) invoke(ctx context.Context, target string, body any) (json.RawMessage, error) {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return nil, ErrNotConnected
	}

	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", target, err)
		}
		raw = b
	}

	id := uuid.NewString()
	ch := make(chan *Packet, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if err := conn.send(ctx, &Packet{ID: id, Kind: KindInvoke, Target: target, Body: raw}); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, &InvocationError{Target: target, Message: res.Error}
		}
		return res.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invoker lets the gateway and the room tracker be exercised against a fake
// connection in tests.
type invoker interface {
	invoke(ctx context.Context, target string, body any) (json.RawMessage, error)
}
