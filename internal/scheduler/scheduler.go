package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/clockwise/internal/attendance/materializer"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	"github.com/smallbiznis/clockwise/internal/lease"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

// Ingester materializes one batch of the ledger.
type Ingester interface {
	Run(ctx context.Context, limit int) (materializer.Result, error)
}

// HealthChecker runs one ledger audit.
type HealthChecker interface {
	Check(ctx context.Context) (ledgerhealthdomain.HealthLog, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Ingester Ingester
	Health   HealthChecker
	Locker   *lease.Locker                `optional:"true"`
	Rules    *config.RulesConfigHolder    `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Config   Config                       `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	ingester Ingester
	health   HealthChecker
	locker   *lease.Locker
	rules    *config.RulesConfigHolder
	metrics  *obsmetrics.SchedulerMetrics

	mu         sync.Mutex
	lastHealth time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Ingester == nil || p.Health == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		ingester: p.Ingester,
		health:   p.Health,
		locker:   p.Locker,
		rules:    p.Rules,
		metrics:  metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout: the next tick resumes where this one stopped
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs the ingest job and, when due, the ledger health job.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.isJobEnabled(JobLedgerIngest) {
		err = errors.Join(err, s.runJob(parent, JobLedgerIngest, s.ingestBatchSize(), s.cfg.IngestTimeout, s.IngestJob))
	}
	if s.isJobEnabled(JobLedgerHealth) {
		if s.healthDue() {
			err = errors.Join(err, s.runJob(parent, JobLedgerHealth, 1, s.cfg.HealthTimeout, s.HealthJob))
		} else {
			s.metrics.IncBatchDeferred(JobLedgerHealth, obsmetrics.SchedulerBatchDeferredReasonNotDue)
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// IngestJob drains the ledger in batches under the consumer lease.
func (s *Scheduler) IngestJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLedgerIngest, s.ingestBatchSize())
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	err := s.locker.WithLease(ctx, JobLedgerIngest, s.cfg.LeaseTTL, func(ctx context.Context) error {
		return s.drainLedger(ctx, run)
	})
	if errors.Is(err, lease.ErrNotAcquired) {
		s.metrics.IncBatchDeferred(JobLedgerIngest, obsmetrics.SchedulerBatchDeferredReasonLeaseHeld)
		s.logger(ctx).Debug("ledger ingest lease held elsewhere", zap.String("run_id", run.runID))
		return nil
	}
	return err
}

func (s *Scheduler) drainLedger(ctx context.Context, run *jobRun) error {
	batchSize := s.ingestBatchSize()
	var jobErr error

	for i := 0; i < s.cfg.MaxIngestBatches; i++ {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		result, err := s.ingester.Run(ctx, batchSize)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.ingest.batch.failed", err,
				zap.Int("batch", i),
				zap.Int64("marked", result.Marked),
			)
			jobErr = errors.Join(jobErr, err)
			if result.Marked == 0 {
				return jobErr
			}
		}

		if result.Stats.Total == 0 {
			if i == 0 {
				s.metrics.IncBatchDeferred(JobLedgerIngest, obsmetrics.SchedulerBatchDeferredReasonEmptyBatch)
			}
			break
		}
		run.AddProcessed(result.Stats.Total)
		s.metrics.AddBatchProcessed(JobLedgerIngest, "ledger_rows", result.Stats.Total)
		s.metrics.AddBatchProcessed(JobLedgerIngest, "attendance_events", result.Inserted)
		s.metrics.AddBatchProcessed(JobLedgerIngest, "summaries", result.Recomputed)

		if result.Stats.Total < batchSize {
			break
		}
	}
	return jobErr
}

// HealthJob runs one ledger audit.
func (s *Scheduler) HealthJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobLedgerHealth, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	entry, err := s.health.Check(ctx)
	if err != nil {
		s.logJobError(ctx, run, "scheduler.health.check.failed", err)
		return err
	}
	s.markHealthRun(entry.CheckedAt)
	run.AddProcessed(int(entry.TotalRows))
	s.metrics.AddBatchProcessed(JobLedgerHealth, "ledger_rows", int(entry.TotalRows))
	return nil
}

func (s *Scheduler) healthDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealth.IsZero() || !s.clock.Now().Before(s.lastHealth.Add(s.cfg.HealthInterval))
}

func (s *Scheduler) markHealthRun(at time.Time) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	s.mu.Lock()
	s.lastHealth = at
	s.mu.Unlock()
}

func (s *Scheduler) ingestBatchSize() int {
	if s.cfg.IngestBatchSize > 0 {
		return s.cfg.IngestBatchSize
	}
	return s.rules.Get().PollBatchSize
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs in this process
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
