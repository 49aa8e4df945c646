package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// EventHandler handles one client-bound event. A returned error is logged,
// not propagated.
type EventHandler func(body json.RawMessage) error

type subscriber struct {
	id      uint64
	handler EventHandler
}

// Router fans client-bound events out to subscribers. Subscriptions carry an
// explicit handle so a view can detach without clobbering another view's
// handler.
type Router struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		subs:   make(map[string][]subscriber),
		logger: logger,
	}
}

// Subscription identifies one registered handler.
type Subscription struct {
	router *Router
	event  string
	id     uint64
}

// Cancel detaches the handler. Dispatch snapshots subscribers, so a
// cancellation during dispatch takes effect on the next event.
func (s Subscription) Cancel() {
	if s.router == nil {
		return
	}
	s.router.unsubscribe(s.event, s.id)
}

func (r *Router) Subscribe(event string, h EventHandler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs[event] = append(r.subs[event], subscriber{id: r.nextID, handler: h})
	return Subscription{router: r, event: event, id: r.nextID}
}

func (r *Router) unsubscribe(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[event]
	for i, s := range subs {
		if s.id == id {
			r.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[event]) == 0 {
		delete(r.subs, event)
	}
}

// dispatch invokes every subscriber for the event in subscription order.
// Events with no subscribers are dropped.
func (r *Router) dispatch(event string, body json.RawMessage) {
	r.mu.RLock()
	subs := make([]subscriber, len(r.subs[event]))
	copy(subs, r.subs[event])
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.logger.Debug("dropped event", slog.String("event", event))
		return
	}

	for _, s := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error(fmt.Sprintf("handler(%s): %v", event, rec))
				}
			}()
			if err := s.handler(body); err != nil {
				r.logger.Error(fmt.Sprintf("handler(%s): %v", event, err))
			}
		}()
	}
}
