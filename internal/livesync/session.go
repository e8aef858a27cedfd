package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	obslogger "github.com/smallbiznis/condopay/internal/observability/logger"
	"github.com/smallbiznis/condopay/internal/observability/metrics"
	"github.com/smallbiznis/condopay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// Update is published after every recompute that was not superseded.
// Err is set when the fetch failed; Snapshot then still holds the last
// known good report, if any.
type Update struct {
	Snapshot   contributiondomain.Snapshot
	Generation uint64
	Err        error
}

type result struct {
	generation uint64
	trigger    string
	snapshot   contributiondomain.Snapshot
	err        error
}

type Session struct {
	ctrl          *Controller
	log           *zap.Logger
	condominiumID snowflake.ID
	year          int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	refresh chan struct{}
	results chan result

	feedSubs []changefeed.Subscription

	// generation is owned by the run loop after activation.
	generation uint64

	mu     sync.Mutex
	latest Update
	hasAny bool
	subs   map[uint64]chan Update
	nextID uint64
	closed bool

	closeOnce sync.Once
}

func newSession(c *Controller, condominiumID snowflake.ID, year int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ctrl:          c,
		log:           obslogger.WithSession(c.log, condominiumID, year),
		condominiumID: condominiumID,
		year:          year,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		refresh:       make(chan struct{}, 1),
		results:       make(chan result),
		subs:          make(map[uint64]chan Update),
	}
}

func (s *Session) CondominiumID() snowflake.ID { return s.condominiumID }
func (s *Session) Year() int                   { return s.year }

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Latest returns the most recent update.
func (s *Session) Latest() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribe returns a channel that receives the latest update immediately
// and every later one. Slow readers only see the newest update. The channel
// is closed by the returned cancel func or when the session closes.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	if s.hasAny {
		ch <- s.latest
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if current, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(current)
			}
			s.mu.Unlock()
		})
	}
}

// Refresh requests an immediate recompute, superseding any in flight.
func (s *Session) Refresh() error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}
	select {
	case s.refresh <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the loop, releases the feed subscriptions and closes every
// subscriber channel. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done

		for _, sub := range s.feedSubs {
			if err := sub.Close(); err != nil {
				s.log.Warn("close change feed subscription", zap.Error(err))
			}
		}

		s.mu.Lock()
		s.closed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()

		s.ctrl.reconcileMetrics.SessionClosed()
		s.log.Debug("live session closed")
	})
	return nil
}

func (s *Session) run(feeds []<-chan changefeed.Event) {
	defer close(s.done)

	var paymentsCh, residentsCh <-chan changefeed.Event
	if len(feeds) > 0 {
		paymentsCh = feeds[0]
	}
	if len(feeds) > 1 {
		residentsCh = feeds[1]
	}

	var (
		debounce      *time.Timer
		debounceC     <-chan time.Time
		cancelRunning context.CancelFunc
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		if cancelRunning != nil {
			cancelRunning()
		}
	}()

	arm := func() {
		window := s.ctrl.cfg.Get().Debounce
		if debounce == nil {
			debounce = time.NewTimer(window)
		} else {
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(window)
		}
		debounceC = debounce.C
	}

	start := func(trigger string) {
		if cancelRunning != nil {
			cancelRunning()
		}
		s.generation++
		gen := s.generation

		ctx, cancel := context.WithCancel(correlation.WithID(s.ctx, correlation.NewID()))
		cancelRunning = cancel
		go func() {
			snap, err := s.ctrl.contributions.GetReport(contributiondomain.WithTrigger(ctx, trigger), s.condominiumID, s.year)
			select {
			case s.results <- result{generation: gen, trigger: trigger, snapshot: snap, err: err}:
			case <-s.ctx.Done():
			}
		}()
	}

	onEvent := func(ev changefeed.Event) {
		s.ctrl.metrics.RecordFeedEvent(s.ctx, string(ev.Table), string(ev.Op))
		arm()
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-paymentsCh:
			if !ok {
				s.log.Warn("payments change feed ended")
				paymentsCh = nil
				continue
			}
			onEvent(ev)
		case ev, ok := <-residentsCh:
			if !ok {
				s.log.Warn("residents change feed ended")
				residentsCh = nil
				continue
			}
			onEvent(ev)
		case <-debounceC:
			debounceC = nil
			start(metrics.TriggerFeed)
		case <-s.refresh:
			start(metrics.TriggerManual)
		case res := <-s.results:
			if res.generation != s.generation {
				s.ctrl.reconcileMetrics.ObserveRecompute(res.trigger, metrics.RecomputeResultDiscarded, 0)
				s.log.Debug("discarding superseded recompute",
					zap.Uint64("generation", res.generation),
					zap.Uint64("current", s.generation),
				)
				continue
			}
			cancelRunning()
			cancelRunning = nil
			s.apply(res)
		}
	}
}

// apply publishes a recompute result. Failed fetches keep the session's last
// good snapshot, falling back to the stale one the service returned.
func (s *Session) apply(res result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update := Update{Snapshot: res.snapshot, Generation: res.generation, Err: res.err}
	if res.err != nil {
		s.log.Warn("recompute failed, keeping last known good report", zap.Error(res.err))
		if s.hasAny && !s.latest.Snapshot.GeneratedAt.IsZero() {
			update.Snapshot = s.latest.Snapshot
			update.Snapshot.Stale = true
		}
	}

	s.latest = update
	s.hasAny = true
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
			// Drop the unread update in favour of the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
