package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clockwise/internal/clock"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/hashchain"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	obslogger "github.com/smallbiznis/clockwise/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"github.com/smallbiznis/clockwise/internal/observability/tracing"
	"github.com/smallbiznis/clockwise/pkg/db/option"
	"github.com/smallbiznis/clockwise/pkg/db/pagination"
	"github.com/smallbiznis/clockwise/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	scanPageSize = 1000
	maxSamples   = 100

	// gap and chain scans read the whole ledger
	scanSlowQueryThreshold = 5 * time.Second
)

var tracer = otel.Tracer("clockwise/ledgerhealth")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Ledger   ledgerdomain.Repository
	Poller   *poller.Poller
	Exporter ledgerhealthdomain.Exporter `optional:"true"`
	Metrics  *obsmetrics.Metrics         `optional:"true"`
}

// Monitor audits the ledger for sequence gaps, hash chain damage and
// processing lag. It only reads ledger rows.
type Monitor struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	ledger   ledgerdomain.Repository
	poller   *poller.Poller
	logs     repository.Repository[ledgerhealthdomain.HealthLog]
	exporter ledgerhealthdomain.Exporter
	metrics  *obsmetrics.Metrics
}

func New(p Params) *Monitor {
	return &Monitor{
		db:       p.DB,
		log:      p.Log.Named("ledgerhealth.monitor"),
		genID:    p.GenID,
		clock:    p.Clock,
		ledger:   p.Ledger,
		poller:   p.Poller,
		logs:     repository.ProvideStore[ledgerhealthdomain.HealthLog](p.DB),
		exporter: p.Exporter,
		metrics:  p.Metrics,
	}
}

// Check runs one audit and stores its HealthLog. Anomalies end up in the log;
// only failures to read or write the database are returned as errors.
func (m *Monitor) Check(ctx context.Context) (ledgerhealthdomain.HealthLog, error) {
	ctx, span := tracer.Start(ctx, "ledgerhealth.check")
	defer span.End()

	started := m.clock.Now()
	entry := ledgerhealthdomain.HealthLog{
		ID:           m.genID.Generate(),
		CheckedAt:    started,
		Gaps:         []ledgerdomain.SequenceGap{},
		HashFailures: []hashchain.Failure{},
	}

	scanCtx := obslogger.WithSlowQueryThreshold(ctx, scanSlowQueryThreshold)
	bounds, err := m.ledger.SequenceBounds(scanCtx, m.db)
	if err != nil {
		tracing.RecordError(span, err)
		return ledgerhealthdomain.HealthLog{}, err
	}
	entry.FirstSequenceID = bounds.FirstSequenceID
	entry.LastSequenceID = bounds.LastSequenceID
	entry.TotalRows = bounds.TotalRows

	gaps, err := m.ledger.FindGaps(scanCtx, m.db)
	if err != nil {
		tracing.RecordError(span, err)
		return ledgerhealthdomain.HealthLog{}, err
	}
	entry.GapCount = int64(len(gaps))
	if len(gaps) > maxSamples {
		gaps = gaps[:maxSamples]
	}
	entry.Gaps = append(entry.Gaps, gaps...)

	if err := m.verifyChain(scanCtx, bounds, &entry); err != nil {
		tracing.RecordError(span, err)
		return ledgerhealthdomain.HealthLog{}, err
	}

	stats, err := m.poller.Stats(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return ledgerhealthdomain.HealthLog{}, err
	}
	entry.UnprocessedCount = stats.UnprocessedCount
	entry.StaleUnprocessedCount = stats.StaleUnprocessedCount
	entry.ProcessingLagSeconds = stats.ProcessingLagSeconds

	entry.Status = Classify(entry)
	entry.DurationMs = m.clock.Now().Sub(started).Milliseconds()
	entry.CreatedAt = m.clock.Now()

	if err := m.logs.Create(ctx, &entry); err != nil {
		tracing.RecordError(span, err)
		return ledgerhealthdomain.HealthLog{}, err
	}

	m.metrics.RecordHealthCheck(ctx, string(entry.Status))
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("ledger.health_status", string(entry.Status)),
		attribute.Int64("ledger.gap_count", entry.GapCount),
		attribute.Int64("ledger.hash_failure_count", entry.HashFailureCount),
	)...)

	fields := []zap.Field{
		zap.String("health_log_id", entry.ID.String()),
		zap.String("status", string(entry.Status)),
		zap.Int64("total_rows", entry.TotalRows),
		zap.Int64("gap_count", entry.GapCount),
		zap.Int64("hash_failure_count", entry.HashFailureCount),
		zap.Int64("unprocessed", entry.UnprocessedCount),
		zap.Int64("stale_unprocessed", entry.StaleUnprocessedCount),
		zap.Float64("lag_seconds", entry.ProcessingLagSeconds),
	}
	switch entry.Status {
	case ledgerhealthdomain.StatusCritical:
		m.log.Error("ledger health check", fields...)
	case ledgerhealthdomain.StatusWarning:
		m.log.Warn("ledger health check", fields...)
	default:
		m.log.Info("ledger health check", fields...)
	}

	if m.exporter != nil {
		if err := m.exporter.Export(ctx, entry); err != nil {
			m.log.Warn("failed to export ledger health", zap.Error(err))
		}
	}
	return entry, nil
}

// verifyChain re-hashes every row from the lowest sequence id up.
func (m *Monitor) verifyChain(ctx context.Context, bounds ledgerdomain.SequenceBounds, entry *ledgerhealthdomain.HealthLog) error {
	if bounds.FirstSequenceID == nil {
		return nil
	}
	var verifier hashchain.Verifier
	from := *bounds.FirstSequenceID
	for {
		rows, err := m.ledger.ScanFrom(ctx, m.db, from, scanPageSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, failure := range verifier.Check(rows) {
			entry.HashFailureCount++
			if len(entry.HashFailures) < maxSamples {
				entry.HashFailures = append(entry.HashFailures, failure)
			}
		}
		last := rows[len(rows)-1].SequenceID
		if len(rows) < scanPageSize || last == math.MaxInt64 {
			return nil
		}
		from = last + 1
	}
}

// Classify derives the status of a health log from its counters.
func Classify(entry ledgerhealthdomain.HealthLog) ledgerhealthdomain.Status {
	switch {
	case entry.HashFailureCount > 0:
		return ledgerhealthdomain.StatusCritical
	case entry.GapCount > 0, entry.StaleUnprocessedCount > 0:
		return ledgerhealthdomain.StatusWarning
	default:
		return ledgerhealthdomain.StatusHealthy
	}
}

// Latest returns the most recent health log.
func (m *Monitor) Latest(ctx context.Context) (*ledgerhealthdomain.HealthLog, error) {
	rows, err := m.logs.Find(ctx, &ledgerhealthdomain.HealthLog{},
		option.WithSortBy("checked_at", "desc"),
		option.WithSortBy("id", "desc"),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ledgerhealthdomain.ErrNoHealthLog
	}
	return rows[0], nil
}

// List returns one page of health logs, newest first. The page token is the
// cursor of the last row of the previous page.
func (m *Monitor) List(ctx context.Context, page pagination.Pagination) ([]ledgerhealthdomain.HealthLog, pagination.PageInfo, error) {
	page = page.Normalize()
	opts := []option.QueryOption{
		option.WithSortBy("checked_at", "desc"),
		option.WithSortBy("id", "desc"),
		option.WithLimit(page.PageSize + 1),
	}
	if page.PageToken != "" {
		checkedAt, id, err := decodeHealthCursor(page.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		opts = append(opts, option.WithWhere(
			"checked_at < ? OR (checked_at = ? AND id < ?)", checkedAt, checkedAt, id,
		))
	}

	rows, err := m.logs.Find(ctx, &ledgerhealthdomain.HealthLog{}, opts...)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	rows, info := pagination.BuildCursorPageInfo(rows, page.PageSize, encodeHealthCursor)

	items := make([]ledgerhealthdomain.HealthLog, 0, len(rows))
	for _, row := range rows {
		items = append(items, *row)
	}
	return items, info, nil
}

func encodeHealthCursor(entry *ledgerhealthdomain.HealthLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        entry.ID.String(),
		CreatedAt: entry.CheckedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeHealthCursor(token string) (time.Time, snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return time.Time{}, 0, ledgerhealthdomain.ErrInvalidPageToken
	}
	checkedAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return time.Time{}, 0, ledgerhealthdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return time.Time{}, 0, ledgerhealthdomain.ErrInvalidPageToken
	}
	return checkedAt, id, nil
}
