// Package materializer turns prepared ledger batches into attendance events
// and refreshes the summaries they touch.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/hashchain"
	"github.com/smallbiznis/clockwise/internal/ledger/pipeline"
	obslogger "github.com/smallbiznis/clockwise/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clockwise/internal/observability/metrics"
	"github.com/smallbiznis/clockwise/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("clockwise/attendance")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Pipeline  *pipeline.Pipeline
	Employees employeedomain.Directory
	Events    attendancedomain.EventRepository
	Summaries attendancedomain.SummaryService
	Rules     *config.RulesConfigHolder `optional:"true"`
	Metrics   *obsmetrics.Metrics       `optional:"true"`
}

type Materializer struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	pipeline  *pipeline.Pipeline
	employees employeedomain.Directory
	events    attendancedomain.EventRepository
	summaries attendancedomain.SummaryService
	rules     *config.RulesConfigHolder
	metrics   *obsmetrics.Metrics
}

// Result reports one materialized batch.
type Result struct {
	Stats      ledgerdomain.BatchStats `json:"stats"`
	Inserted   int                     `json:"inserted"`
	Conflicts  int                     `json:"conflicts"`
	Unmatched  int                     `json:"unmatched"`
	Marked     int64                   `json:"marked"`
	Recomputed int                     `json:"recomputed"`
	Skipped    int                     `json:"skipped"`
}

func New(p Params) *Materializer {
	return &Materializer{
		db:        p.DB,
		log:       p.Log.Named("attendance.materializer"),
		genID:     p.GenID,
		clock:     p.Clock,
		pipeline:  p.Pipeline,
		employees: p.Employees,
		events:    p.Events,
		summaries: p.Summaries,
		rules:     p.Rules,
		metrics:   p.Metrics,
	}
}

// Run materializes the oldest unprocessed ledger rows, up to limit.
//
// Every polled row is marked processed once events are committed, including
// duplicates and scans whose token matches no employee. Summary recompute
// errors are joined and returned with a populated Result: the ledger rows are
// already consumed at that point.
func (m *Materializer) Run(ctx context.Context, limit int) (Result, error) {
	ctx, span := tracer.Start(ctx, "attendance.materializer.run")
	defer span.End()

	batch, err := m.pipeline.Prepare(ctx, limit)
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, err
	}
	result := Result{Stats: batch.Stats}
	if batch.Stats.Total == 0 {
		return result, nil
	}

	employees, err := m.employees.ResolveTokens(ctx, tokensOf(batch.Processable))
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, err
	}

	log := obslogger.WithContext(ctx, m.log)
	loc := m.rules.Get().Location()
	now := m.clock.Now()
	touched := make(map[attendancedomain.DayKey]struct{})

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range batch.Processable {
			employee, ok := employees[record.IdentityToken]
			if !ok {
				result.Unmatched++
				log.Warn("ledger scan has no matching employee",
					zap.Int64("sequence_id", record.SequenceID),
					zap.String("device_id", record.DeviceID),
				)
				continue
			}

			sequenceID := record.SequenceID
			eventDate := clock.DateIn(record.ScanTimestamp, loc)
			event := &attendancedomain.AttendanceEvent{
				ID:               m.genID.Generate(),
				EmployeeID:       employee.ID,
				EventDate:        attendancedomain.DateValue(eventDate),
				EventTime:        record.ScanTimestamp.UTC(),
				EventKind:        record.EventKind,
				LedgerSequenceID: &sequenceID,
				HashVerified:     hashchain.Verify(record),
				Source:           attendancedomain.EventSourceDevice,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			inserted, err := m.events.InsertFromLedger(ctx, tx, event)
			if err != nil {
				return fmt.Errorf("insert event for sequence %d: %w", sequenceID, err)
			}
			if !inserted {
				result.Conflicts++
				continue
			}
			if !event.HashVerified {
				log.Warn("ledger scan failed hash verification",
					zap.Int64("sequence_id", sequenceID),
				)
			}
			result.Inserted++
			touched[attendancedomain.DayKey{EmployeeID: employee.ID, Date: eventDate}] = struct{}{}
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, err
	}

	rows := make([]ledgerdomain.LedgerRecord, 0, len(batch.Records))
	for _, record := range batch.Records {
		rows = append(rows, record.Record)
	}
	result.Marked, err = m.pipeline.MarkProcessed(ctx, rows, now)
	if err != nil {
		tracing.RecordError(span, err)
		return result, err
	}

	var errs []error
	for _, key := range sortedKeys(touched) {
		recomputed, err := m.summaries.Recompute(ctx, key.EmployeeID, key.Date)
		if err != nil {
			errs = append(errs, fmt.Errorf("recompute %s on %s: %w", key.EmployeeID, key.Date.Format("2006-01-02"), err))
			continue
		}
		if recomputed.Skipped {
			result.Skipped++
			continue
		}
		result.Recomputed++
	}

	m.metrics.RecordMaterialized(ctx, string(attendancedomain.EventSourceDevice), result.Inserted, result.Conflicts, result.Unmatched)
	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int("attendance.inserted", result.Inserted),
		attribute.Int("attendance.conflicts", result.Conflicts),
		attribute.Int("attendance.unmatched", result.Unmatched),
		attribute.Int("attendance.recomputed", result.Recomputed),
	)...)
	log.Info("materialized ledger batch",
		zap.Int("total", result.Stats.Total),
		zap.Int("inserted", result.Inserted),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("unmatched", result.Unmatched),
		zap.Int64("marked", result.Marked),
		zap.Int("recomputed", result.Recomputed),
		zap.Int("skipped_finalized", result.Skipped),
	)

	if err := errors.Join(errs...); err != nil {
		tracing.RecordError(span, err)
		return result, err
	}
	return result, nil
}

func tokensOf(records []ledgerdomain.LedgerRecord) []string {
	tokens := make([]string, 0, len(records))
	for _, record := range records {
		tokens = append(tokens, record.IdentityToken)
	}
	return tokens
}

func sortedKeys(set map[attendancedomain.DayKey]struct{}) []attendancedomain.DayKey {
	keys := make([]attendancedomain.DayKey, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].Date.Equal(keys[j].Date) {
			return keys[i].Date.Before(keys[j].Date)
		}
		return keys[i].EmployeeID < keys[j].EmployeeID
	})
	return keys
}
