// Package hub is the in-process change feed used when no external transport
// is configured. Writers publish after commit; subscribers in the same
// process receive the events.
package hub

import (
	"context"
	"sync"

	"github.com/smallbiznis/condopay/internal/changefeed/domain"
)

const DefaultSubscriberBuffer = 16

// Hub fans events out to subscribers keyed by table and condominium.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription is one listener. Its channel closes on Close.
type Subscription struct {
	hub  *Hub
	key  string
	ch   chan domain.Event
	once sync.Once
}

func New() *Hub {
	return &Hub{
		buffer: DefaultSubscriberBuffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Publish never blocks. A subscriber whose buffer is full already has
// undelivered events queued, so dropping one more loses no trigger.
func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	if h == nil {
		return domain.ErrFeedUnavailable
	}
	key := domain.Filter{Table: event.Table, CondominiumID: event.CondominiumID}.Key()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[key] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, filter domain.Filter) (domain.Subscription, error) {
	if h == nil {
		return nil, domain.ErrFeedUnavailable
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	sub := &Subscription{hub: h, key: filter.Key(), ch: make(chan domain.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.key]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[sub.key] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// Subscribers reports the open subscriptions for a filter.
func (h *Hub) Subscribers(filter domain.Filter) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[filter.Key()])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.key]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.key)
	}
	// Publish holds the read lock while sending, so no send can race this close.
	close(sub.ch)
}

func (s *Subscription) Events() <-chan domain.Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() error {
	if s == nil || s.hub == nil {
		return nil
	}
	s.once.Do(func() { s.hub.remove(s) })
	return nil
}
