// Package pipeline composes poll, dedup and reconcile into one dry-run step
// that yields the records still to be materialized.
package pipeline

import (
	"context"
	"time"

	"github.com/smallbiznis/clockwise/internal/config"
	"github.com/smallbiznis/clockwise/internal/ledger/dedup"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	"github.com/smallbiznis/clockwise/internal/ledger/reconcile"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"github.com/smallbiznis/clockwise/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("clockwise/ledger")

type Params struct {
	fx.In

	Log        *zap.Logger
	Poller     *poller.Poller
	Reconciler *reconcile.Reconciler
	Rules      *config.RulesConfigHolder `optional:"true"`
	Metrics    *obsmetrics.Metrics       `optional:"true"`
}

type Pipeline struct {
	log        *zap.Logger
	poller     *poller.Poller
	reconciler *reconcile.Reconciler
	rules      *config.RulesConfigHolder
	metrics    *obsmetrics.Metrics
}

func New(p Params) *Pipeline {
	return &Pipeline{
		log:        p.Log.Named("ledger.pipeline"),
		poller:     p.Poller,
		reconciler: p.Reconciler,
		rules:      p.Rules,
		metrics:    p.Metrics,
	}
}

// Prepare polls the oldest unprocessed rows and annotates them. It performs
// no writes.
func (p *Pipeline) Prepare(ctx context.Context, limit int) (ledgerdomain.PreparedBatch, error) {
	return p.PrepareFrom(ctx, ledgerdomain.MinSequenceID, limit)
}

// PrepareFrom is Prepare resuming at fromSequenceID.
func (p *Pipeline) PrepareFrom(ctx context.Context, fromSequenceID int64, limit int) (ledgerdomain.PreparedBatch, error) {
	ctx, span := tracer.Start(ctx, "ledger.pipeline.prepare")
	defer span.End()

	rows, err := p.poller.PollFrom(ctx, fromSequenceID, limit)
	if err != nil {
		tracing.RecordError(span, err)
		return ledgerdomain.PreparedBatch{}, err
	}
	if len(rows) == 0 {
		return ledgerdomain.PreparedBatch{
			Records:     []ledgerdomain.AnnotatedRecord{},
			Processable: []ledgerdomain.LedgerRecord{},
		}, nil
	}

	folded, _ := dedup.Fold(p.rules.Get().DedupWindow, dedup.NewState(), rows)

	annotated, err := p.reconciler.Reconcile(ctx, folded.Records)
	if err != nil {
		tracing.RecordError(span, err)
		return ledgerdomain.PreparedBatch{}, err
	}

	batch := Assemble(annotated)
	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int64("ledger.from_sequence_id", fromSequenceID),
		attribute.Int("ledger.total", batch.Stats.Total),
		attribute.Int("ledger.duplicates", batch.Stats.Duplicates),
		attribute.Int("ledger.already_processed", batch.Stats.AlreadyProcessed),
		attribute.Int("ledger.processable", len(batch.Processable)),
	)...)
	p.metrics.RecordPrepared(ctx, batch.Stats.Total, batch.Stats.Duplicates, batch.Stats.AlreadyProcessed)

	p.log.Debug("prepared ledger batch",
		zap.Int64("from_sequence_id", fromSequenceID),
		zap.Int("total", batch.Stats.Total),
		zap.Int("duplicates", batch.Stats.Duplicates),
		zap.Int("already_processed", batch.Stats.AlreadyProcessed),
		zap.Int("processable", len(batch.Processable)),
	)
	return batch, nil
}

// MarkProcessed delegates to the poller.
func (p *Pipeline) MarkProcessed(ctx context.Context, rows []ledgerdomain.LedgerRecord, processedAt time.Time) (int64, error) {
	return p.poller.MarkProcessed(ctx, rows, processedAt)
}

// Assemble computes stats and the processable subset. A record that is both
// a duplicate and already processed counts once, as a duplicate.
func Assemble(records []ledgerdomain.AnnotatedRecord) ledgerdomain.PreparedBatch {
	batch := ledgerdomain.PreparedBatch{
		Records:     records,
		Processable: make([]ledgerdomain.LedgerRecord, 0, len(records)),
	}
	batch.Stats.Total = len(records)

	for _, record := range records {
		switch {
		case record.Dedup.IsDuplicate:
			batch.Stats.Duplicates++
		case record.AlreadyProcessed:
			batch.Stats.AlreadyProcessed++
		default:
			batch.Processable = append(batch.Processable, record.Record)
		}
	}
	batch.Stats.Unique = batch.Stats.Total - batch.Stats.Duplicates - batch.Stats.AlreadyProcessed
	return batch
}
