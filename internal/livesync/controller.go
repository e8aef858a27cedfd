// Package livesync keeps contribution reports fresh while someone watches
// them. A Session subscribes to the payments and residents change feeds of
// one condominium and recomputes the whole report, debounced, on any change.
package livesync

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	changefeed "github.com/smallbiznis/condopay/internal/changefeed/domain"
	"github.com/smallbiznis/condopay/internal/config"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidCondominium = errors.New("invalid_condominium")
	ErrInvalidYear        = errors.New("invalid_year")
	ErrSessionClosed      = errors.New("session_closed")
)

type Params struct {
	fx.In

	Log              *zap.Logger
	Contributions    contributiondomain.Service
	Feed             changefeed.Feed
	Config           *config.ReconcileConfigHolder
	Metrics          *metrics.Metrics          `optional:"true"`
	ReconcileMetrics *metrics.ReconcileMetrics `optional:"true"`
}

type Controller struct {
	log              *zap.Logger
	contributions    contributiondomain.Service
	feed             changefeed.Feed
	cfg              *config.ReconcileConfigHolder
	metrics          *metrics.Metrics
	reconcileMetrics *metrics.ReconcileMetrics
}

func NewController(p Params) *Controller {
	return &Controller{
		log:              p.Log.Named("livesync"),
		contributions:    p.Contributions,
		feed:             p.Feed,
		cfg:              p.Config,
		metrics:          p.Metrics,
		reconcileMetrics: p.ReconcileMetrics,
	}
}

// Activate subscribes to both change feeds, computes the report once and
// returns the running session. The caller must Close it.
//
// A failed initial fetch or a failed subscription does not fail activation:
// the first update carries the error and the session keeps whatever
// snapshot it could get.
func (c *Controller) Activate(ctx context.Context, condominiumID snowflake.ID, year int) (*Session, error) {
	if condominiumID == 0 {
		return nil, ErrInvalidCondominium
	}
	if !contributiondomain.ValidYear(year) {
		return nil, ErrInvalidYear
	}

	s := newSession(c, condominiumID, year)

	var feeds []<-chan changefeed.Event
	for _, table := range []changefeed.Table{changefeed.TablePayments, changefeed.TableResidents} {
		sub, err := c.feed.Subscribe(ctx, changefeed.Filter{Table: table, CondominiumID: condominiumID})
		if err != nil {
			s.log.Warn("change feed subscription failed, live updates disabled for table",
				zap.String("table", string(table)),
				zap.Error(err),
			)
			continue
		}
		s.feedSubs = append(s.feedSubs, sub)
		feeds = append(feeds, sub.Events())
	}

	// Subscriptions buffer what is written during the initial fetch, so the
	// run loop sees those events and schedules a recompute.
	snap, err := c.contributions.GetReport(contributiondomain.WithTrigger(ctx, metrics.TriggerInitial), condominiumID, year)
	s.generation = 1
	s.apply(result{generation: 1, trigger: metrics.TriggerInitial, snapshot: snap, err: err})

	c.reconcileMetrics.SessionOpened()
	go s.run(feeds)
	return s, nil
}
