// Package pgnotify turns postgres NOTIFY messages emitted by the
// condopay_notify_change trigger into change feed events.
//
// A single dedicated connection listens on every watched table and fans the
// notifications out through an in-process hub, so sessions do not hold a
// connection each.
package pgnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/changefeed/hub"
	"go.uber.org/zap"
)

const (
	channelPrefix    = "condopay_"
	reconnectBackoff = 2 * time.Second
)

var watchedTables = []domain.Table{domain.TablePayments, domain.TableResidents}

// Channel is the NOTIFY channel written by the trigger for a table.
func Channel(table domain.Table) string {
	return channelPrefix + string(table)
}

type notification struct {
	Table         string `json:"table"`
	Op            string `json:"op"`
	CondominiumID int64  `json:"condominium_id"`
	RowID         int64  `json:"row_id"`
}

// ParseNotification decodes a trigger payload.
func ParseNotification(payload string, receivedAt time.Time) (domain.Event, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return domain.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	table := domain.Table(n.Table)
	if !table.Valid() {
		return domain.Event{}, domain.ErrInvalidTable
	}
	op, ok := domain.ParseOperation(n.Op)
	if !ok {
		return domain.Event{}, fmt.Errorf("unknown operation %q", n.Op)
	}
	if n.CondominiumID == 0 {
		return domain.Event{}, domain.ErrInvalidCondominium
	}
	return domain.NewEvent(table, op, snowflake.ID(n.CondominiumID), snowflake.ID(n.RowID), receivedAt), nil
}

type Listener struct {
	dsn string
	log *zap.Logger
	hub *hub.Hub

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(dsn string, log *zap.Logger) *Listener {
	return &Listener{
		dsn: dsn,
		log: log.Named("changefeed.pgnotify"),
		hub: hub.New(),
	}
}

func (l *Listener) Subscribe(ctx context.Context, filter domain.Filter) (domain.Subscription, error) {
	return l.hub.Subscribe(ctx, filter)
}

// Start launches the listen loop. It reconnects until Stop is called.
func (l *Listener) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	return nil
}

func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn("listen connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", reconnectBackoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	for _, table := range watchedTables {
		if _, err := conn.Exec(ctx, "LISTEN "+pq.QuoteIdentifier(Channel(table))); err != nil {
			return fmt.Errorf("listen %s: %w", table, err)
		}
	}
	l.log.Info("listening for table changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := ParseNotification(n.Payload, time.Now())
		if err != nil {
			l.log.Warn("ignoring notification", zap.String("channel", n.Channel), zap.Error(err))
			continue
		}
		_ = l.hub.Publish(ctx, event)
	}
}
