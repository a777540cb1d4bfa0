package poller

import (
	"context"
	"time"

	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  ledgerdomain.Repository
	Clock clock.Clock
	Rules *config.RulesConfigHolder `optional:"true"`
}

// Poller reads unprocessed ledger rows in sequence order.
type Poller struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  ledgerdomain.Repository
	clock clock.Clock
	rules *config.RulesConfigHolder
}

func New(p Params) *Poller {
	return &Poller{
		db:    p.DB,
		log:   p.Log.Named("ledger.poller"),
		repo:  p.Repo,
		clock: p.Clock,
		rules: p.Rules,
	}
}

// PollNew returns up to limit unprocessed rows, oldest sequence first.
func (p *Poller) PollNew(ctx context.Context, limit int) ([]ledgerdomain.LedgerRecord, error) {
	return p.PollFrom(ctx, ledgerdomain.MinSequenceID, limit)
}

// PollFrom is PollNew starting at fromSequenceID (inclusive).
func (p *Poller) PollFrom(ctx context.Context, fromSequenceID int64, limit int) ([]ledgerdomain.LedgerRecord, error) {
	if limit <= 0 {
		limit = p.rules.Get().PollBatchSize
	}

	rows, err := p.repo.ListUnprocessed(ctx, p.db, fromSequenceID, limit)
	if err != nil {
		return nil, err
	}
	p.log.Debug("polled ledger",
		zap.Int64("from_sequence_id", fromSequenceID),
		zap.Int("limit", limit),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// MarkProcessed flags rows as consumed. Call it only after the attendance
// events for the batch are stored, so a crash in between re-delivers the rows.
func (p *Poller) MarkProcessed(ctx context.Context, rows []ledgerdomain.LedgerRecord, processedAt time.Time) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if processedAt.IsZero() {
		processedAt = p.clock.Now()
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SequenceID)
	}

	updated, err := p.repo.MarkProcessed(ctx, p.db, ids, processedAt.UTC())
	if err != nil {
		return updated, err
	}
	if updated != int64(len(ids)) {
		p.log.Info("some ledger rows were already processed",
			zap.Int("requested", len(ids)),
			zap.Int64("updated", updated),
		)
	}
	return updated, nil
}

// Stats reports backlog size and how far the consumer trails the ledger head.
func (p *Poller) Stats(ctx context.Context) (ledgerdomain.PollerStats, error) {
	var stats ledgerdomain.PollerStats
	now := p.clock.Now()

	unprocessed, err := p.repo.CountUnprocessed(ctx, p.db)
	if err != nil {
		return stats, err
	}
	stats.UnprocessedCount = unprocessed

	last, err := p.repo.LastRecord(ctx, p.db)
	if err != nil {
		return stats, err
	}
	if last != nil {
		seq := last.SequenceID
		scannedAt := last.ScanTimestamp.UTC()
		stats.LastSequenceID = &seq
		stats.LastScanTimestamp = &scannedAt
		stats.ProcessingLagSeconds = now.Sub(scannedAt).Seconds()
	}

	cutoff := now.Add(-p.rules.Get().StalenessThreshold)
	stale, err := p.repo.CountUnprocessedBefore(ctx, p.db, cutoff)
	if err != nil {
		return stats, err
	}
	stats.StaleUnprocessedCount = stale

	return stats, nil
}
