package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clockwise/internal/attendance"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/config"
	"github.com/smallbiznis/clockwise/internal/employee"
	"github.com/smallbiznis/clockwise/internal/healthexport"
	"github.com/smallbiznis/clockwise/internal/ledger"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/pipeline"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	"github.com/smallbiznis/clockwise/internal/ledgerhealth"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	ledgerhealthservice "github.com/smallbiznis/clockwise/internal/ledgerhealth/service"
	"github.com/smallbiznis/clockwise/internal/observability"
	obsmiddleware "github.com/smallbiznis/clockwise/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	obstracing "github.com/smallbiznis/clockwise/internal/observability/tracing"
	"github.com/smallbiznis/clockwise/internal/ratelimit"
	"github.com/smallbiznis/clockwise/internal/schedule"
	"github.com/smallbiznis/clockwise/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handlers builds the routed Server and every domain it exposes, without
// binding a listener.
var Handlers = fx.Options(
	ledger.Module,
	employee.Module,
	schedule.Module,
	attendance.Module,
	healthexport.Module,
	ledgerhealth.Module,
	fx.Provide(registerGin),
	fx.Provide(provideLedgerPipeline),
	fx.Provide(provideLedgerStats),
	fx.Provide(provideHealthMonitor),
	ratelimit.Module,
	fx.Provide(provideThrottle),
	fx.Provide(NewServer),
)

// Module serves the HTTP API on cfg.HTTPAddr.
var Module = fx.Module("http.server",
	Handlers,
	fx.Invoke(run),
)

// LedgerPipeline is the dry-run view of the processing pipeline.
type LedgerPipeline interface {
	PrepareFrom(ctx context.Context, fromSequenceID int64, limit int) (ledgerdomain.PreparedBatch, error)
}

type LedgerStats interface {
	Stats(ctx context.Context) (ledgerdomain.PollerStats, error)
}

type HealthMonitor interface {
	Check(ctx context.Context) (ledgerhealthdomain.HealthLog, error)
	Latest(ctx context.Context) (*ledgerhealthdomain.HealthLog, error)
	List(ctx context.Context, page pagination.Pagination) ([]ledgerhealthdomain.HealthLog, pagination.PageInfo, error)
}

// Throttle rate limits the manual write paths.
type Throttle interface {
	AllowHealthCheck(ctx context.Context) (ratelimit.Result, error)
	AllowManualEvent(ctx context.Context, caller string) (ratelimit.Result, error)
}

func provideLedgerPipeline(p *pipeline.Pipeline) LedgerPipeline { return p }

func provideLedgerStats(p *poller.Poller) LedgerStats { return p }

func provideHealthMonitor(m *ledgerhealthservice.Monitor) HealthMonitor { return m }

func provideThrottle(l *ratelimit.Limiter) Throttle {
	if l == nil {
		return nil
	}
	return l
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
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

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
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
	engine     *gin.Engine
	log        *zap.Logger
	rules      *config.RulesConfigHolder
	pipeline   LedgerPipeline
	ledger     LedgerStats
	health     HealthMonitor
	summaries  attendancedomain.SummaryService
	attendance attendancedomain.Service
	throttle   Throttle
	metrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Rules      *config.RulesConfigHolder `optional:"true"`
	Pipeline   LedgerPipeline
	Ledger     LedgerStats
	Health     HealthMonitor
	Summaries  attendancedomain.SummaryService
	Attendance attendancedomain.Service
	Throttle   Throttle                  `optional:"true"`
	Metrics    *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.handler"),
		rules:      p.Rules,
		pipeline:   p.Pipeline,
		ledger:     p.Ledger,
		health:     p.Health,
		summaries:  p.Summaries,
		attendance: p.Attendance,
		throttle:   p.Throttle,
		metrics:    p.Metrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ledger --------
	api.GET("/ledger/stats", s.GetLedgerStats)
	api.GET("/ledger/prepare", s.PrepareLedgerBatch)
	api.POST("/ledger/health-checks", s.RunHealthCheck)
	api.GET("/ledger/health-checks", s.ListHealthChecks)
	api.GET("/ledger/health-checks/latest", s.GetLatestHealthCheck)

	// -------- Summaries --------
	api.POST("/attendance/summaries/recompute", s.RecomputeSummary)
	api.GET("/attendance/summaries/:employee_id/:date", s.GetSummary)
	api.POST("/attendance/summaries/:employee_id/:date/finalize", s.FinalizeSummary)

	// -------- Events --------
	api.GET("/attendance/events", s.ListEvents)
	api.POST("/attendance/events", s.RecordEvent)
	api.POST("/attendance/events/:id/corrections", s.CorrectEvent)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
