package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/condopay/internal/authorization"
	"github.com/smallbiznis/condopay/internal/changefeed"
	"github.com/smallbiznis/condopay/internal/clock"
	"github.com/smallbiznis/condopay/internal/condominium"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/smallbiznis/condopay/internal/contribution"
	contributiondomain "github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/export"
	"github.com/smallbiznis/condopay/internal/livesync"
	"github.com/smallbiznis/condopay/internal/observability"
	obsmiddleware "github.com/smallbiznis/condopay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/condopay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/condopay/internal/observability/tracing"
	"github.com/smallbiznis/condopay/internal/payment"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	"github.com/smallbiznis/condopay/internal/ratelimit"
	"github.com/smallbiznis/condopay/internal/resident"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	changefeed.Module,
	condominium.Module,
	resident.Module,
	payment.Module,
	contribution.Module,
	livesync.Module,
	export.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	authzSvc        authorization.Service
	condominiumSvc  condominiumdomain.Service
	residentSvc     residentdomain.Service
	paymentSvc      paymentdomain.Service
	contributionSvc contributiondomain.Service
	sessions        *livesync.Registry
	exporter        export.Exporter
	exportLimiter   *ratelimit.ExportLimiter
	httpMetrics     *obsmetrics.HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	AuthzSvc        authorization.Service
	CondominiumSvc  condominiumdomain.Service
	ResidentSvc     residentdomain.Service
	PaymentSvc      paymentdomain.Service
	ContributionSvc contributiondomain.Service
	Sessions        *livesync.Registry
	Exporter        export.Exporter
	ExportLimiter   *ratelimit.ExportLimiter `optional:"true"`
	HTTPMetrics     *obsmetrics.HTTPMetrics  `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		authzSvc:        p.AuthzSvc,
		condominiumSvc:  p.CondominiumSvc,
		residentSvc:     p.ResidentSvc,
		paymentSvc:      p.PaymentSvc,
		contributionSvc: p.ContributionSvc,
		sessions:        p.Sessions,
		exporter:        p.Exporter,
		exportLimiter:   p.ExportLimiter,
		httpMetrics:     p.HTTPMetrics,
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorRequired())

	// -------- Condominiums --------
	api.POST("/condominiums", s.authorizeAction(authorization.ObjectCondominium, authorization.ActionCondominiumCreate), s.CreateCondominium)
	api.GET("/condominiums/:id", s.authorizeCondominiumAction(authorization.ObjectCondominium, authorization.ActionCondominiumView), s.GetCondominium)

	// -------- Contributions --------
	api.GET("/condominiums/:id/contributions", s.authorizeCondominiumAction(authorization.ObjectContributionReport, authorization.ActionReportView), s.GetContributions)
	api.GET("/condominiums/:id/contributions/stream", s.authorizeCondominiumAction(authorization.ObjectContributionReport, authorization.ActionReportStream), s.StreamContributions)
	api.GET("/condominiums/:id/contributions/ws", s.authorizeCondominiumAction(authorization.ObjectContributionReport, authorization.ActionReportStream), s.ContributionsWebsocket)
	api.GET("/condominiums/:id/contributions/export", s.authorizeCondominiumAction(authorization.ObjectContributionReport, authorization.ActionReportExport), s.ExportContributions)

	// -------- Residents --------
	api.GET("/condominiums/:id/residents", s.authorizeCondominiumAction(authorization.ObjectResident, authorization.ActionResidentView), s.ListResidents)
	api.POST("/condominiums/:id/residents", s.authorizeCondominiumAction(authorization.ObjectResident, authorization.ActionResidentCreate), s.RegisterResident)
	api.GET("/residents/:id/overview", s.GetResidentOverview)

	// -------- Payments --------
	api.POST("/condominiums/:id/payments", s.authorizeCondominiumAction(authorization.ObjectPayment, authorization.ActionPaymentCreate), s.CreatePayment)
	api.POST("/payments/:id/approve", s.ApprovePayment)
	api.POST("/payments/:id/cancel", s.CancelPayment)
}
