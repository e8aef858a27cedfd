// Package redisfeed carries change events over redis pub/sub so that writers
// and live sessions in different processes see each other's changes.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/condopay/internal/changefeed/domain"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

type Feed struct {
	client redis.UniversalClient
	prefix string
	log    *zap.Logger
}

func New(client redis.UniversalClient, prefix string, log *zap.Logger) *Feed {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "condopay"
	}
	return &Feed{
		client: client,
		prefix: prefix,
		log:    log.Named("changefeed.redis"),
	}
}

// Channel is the pub/sub channel for one table of one condominium.
func (f *Feed) Channel(filter domain.Filter) string {
	return fmt.Sprintf("%s:changes:%s:%s", f.prefix, filter.Table, filter.CondominiumID)
}

func (f *Feed) Publish(ctx context.Context, event domain.Event) error {
	if f == nil || f.client == nil {
		return domain.ErrFeedUnavailable
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	channel := f.Channel(domain.Filter{Table: event.Table, CondominiumID: event.CondominiumID})
	return f.client.Publish(ctx, channel, payload).Err()
}

func (f *Feed) Subscribe(ctx context.Context, filter domain.Filter) (domain.Subscription, error) {
	if f == nil || f.client == nil {
		return nil, domain.ErrFeedUnavailable
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	channel := f.Channel(filter)
	ps := f.client.Subscribe(ctx, channel)
	// Receive blocks until the server confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &subscription{
		ps:     ps,
		filter: filter,
		log:    f.log,
		ch:     make(chan domain.Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.run()
	return sub, nil
}

type subscription struct {
	ps     *redis.PubSub
	filter domain.Filter
	log    *zap.Logger
	ch     chan domain.Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) run() {
	defer close(s.done)
	defer close(s.ch)

	for msg := range s.ps.Channel() {
		var event domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.log.Warn("ignoring malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if !s.filter.Match(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
}

func (s *subscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		<-s.done
	})
	return err
}
