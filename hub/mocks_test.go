package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type invocation struct {
	Target string
	Body   json.RawMessage
}

// hubServer is a minimal realtime hub: it records invocations and answers
// each one with a result packet, failing the targets it was told to fail.
type hubServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	writeMu     sync.Mutex
	invocations []invocation
	failTargets map[string]string
	results     map[string]json.RawMessage
	conns       []*websocket.Conn
	connCount   int
}

func newHubServer(t *testing.T) *hubServer {
	s := &hubServer{
		t:           t,
		failTargets: make(map[string]string),
		results:     make(map[string]json.RawMessage),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *hubServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *hubServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.connCount++
	s.mu.Unlock()

	for {
		var p Packet
		if err := conn.ReadJSON(&p); err != nil {
			return
		}
		if p.Kind != KindInvoke {
			continue
		}
		s.mu.Lock()
		s.invocations = append(s.invocations, invocation{Target: p.Target, Body: p.Body})
		errMsg := s.failTargets[p.Target]
		body := s.results[p.Target]
		s.mu.Unlock()

		s.write(conn, &Packet{ID: p.ID, Kind: KindResult, Body: body, Error: errMsg})
	}
}

func (s *hubServer) write(conn *websocket.Conn, p *Packet) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(p); err != nil {
		s.t.Logf("server write: %v", err)
	}
}

func (s *hubServer) failTarget(target, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTargets[target] = msg
}

func (s *hubServer) resultFor(target string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		s.t.Fatalf("marshal result: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[target] = b
}

// pushEvent sends a server-push event over the most recent connection.
func (s *hubServer) pushEvent(target string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		s.t.Fatalf("marshal event: %v", err)
	}
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	s.write(conn, &Packet{Kind: KindEvent, Target: target, Body: b})
}

// dropConns kills every connection server-side to simulate a transient drop.
func (s *hubServer) dropConns() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (s *hubServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connCount
}

func (s *hubServer) invocationsFor(target string) []invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []invocation
	for _, inv := range s.invocations {
		if inv.Target == target {
			out = append(out, inv)
		}
	}
	return out
}

func (s *hubServer) totalInvocations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invocations)
}

// gatedDialer passes dials through to the inner dialer, except that an armed
// dial is held open until released.
type gatedDialer struct {
	inner Dialer

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

// arm makes the next dial block. The returned channel is closed once the dial
// is in flight; release lets it proceed.
func (d *gatedDialer) arm() (release func(), entered <-chan struct{}) {
	gate := make(chan struct{})
	in := make(chan struct{})
	d.mu.Lock()
	d.gate, d.entered = gate, in
	d.mu.Unlock()
	return func() { close(gate) }, in
}

func (d *gatedDialer) Dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	d.mu.Lock()
	gate, entered := d.gate, d.entered
	d.gate, d.entered = nil, nil
	d.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return d.inner.Dial(ctx, url, header)
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

// fakeInvoker records invocations without a connection behind it.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
	errs  map[string]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{errs: make(map[string]error)}
}

func (f *fakeInvoker) invoke(_ context.Context, target string, body any) (json.RawMessage, error) {
	b, _ := json.Marshal(body)
	f.mu.Lock()
	f.calls = append(f.calls, invocation{Target: target, Body: b})
	err := f.errs[target]
	f.mu.Unlock()
	return nil, err
}

func (f *fakeInvoker) callsFor(target string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invocation
	for _, c := range f.calls {
		if c.Target == target {
			out = append(out, c)
		}
	}
	return out
}
