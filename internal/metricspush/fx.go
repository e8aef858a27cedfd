package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/condopay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(registerWorker),
)

const defaultPushTimeout = 10 * time.Second

type workerParams struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Pusher Pusher `optional:"true"`
}

func registerWorker(p workerParams) {
	if p.Pusher == nil {
		return
	}

	worker := NewWorker(p.Pusher, p.DB, p.Cfg.MetricsPush.Interval, p.Log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				worker.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Worker pushes the default registry plus a few inventory gauges.
type Worker struct {
	pusher   Pusher
	db       *gorm.DB
	interval time.Duration
	log      *zap.Logger

	gatherer     prometheus.Gatherer
	condominiums prometheus.Gauge
	residents    prometheus.Gauge
}

func NewWorker(pusher Pusher, db *gorm.DB, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}

	local := prometheus.NewRegistry()
	w := &Worker{
		pusher:   pusher,
		db:       db,
		interval: interval,
		log:      log.Named("metricspush"),
		condominiums: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "condopay_condominiums_total",
			Help: "Registered condominiums.",
		}),
		residents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "condopay_residents_total",
			Help: "Registered residents across all condominiums.",
		}),
	}
	local.MustRegister(w.condominiums, w.residents)
	w.gatherer = prometheus.Gatherers{prometheus.DefaultGatherer, local}
	return w
}

// Run pushes once immediately, then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.PushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.PushOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) PushOnce(ctx context.Context) {
	w.refreshInventory(ctx)

	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := w.pusher.Push(pushCtx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}

func (w *Worker) refreshInventory(ctx context.Context) {
	if w.db == nil {
		return
	}
	var count int64
	if err := w.db.WithContext(ctx).Table("condominiums").Count(&count).Error; err == nil {
		w.condominiums.Set(float64(count))
	}
	if err := w.db.WithContext(ctx).Table("residents").Count(&count).Error; err == nil {
		w.residents.Set(float64(count))
	}
}
