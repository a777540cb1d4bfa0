// Package reconcile marks ledger records that already have an attendance event.
package reconcile

import (
	"context"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lookupChunkSize = 500

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Reconciler struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) *Reconciler {
	return &Reconciler{
		db:  p.DB,
		log: p.Log.Named("ledger.reconcile"),
	}
}

type existingEvent struct {
	ID               snowflake.ID
	LedgerSequenceID int64
}

// Reconcile returns a copy of records with AlreadyProcessed and
// ExistingEventID set for every record that was materialized before.
func (r *Reconciler) Reconcile(ctx context.Context, records []ledgerdomain.AnnotatedRecord) ([]ledgerdomain.AnnotatedRecord, error) {
	out := make([]ledgerdomain.AnnotatedRecord, len(records))
	copy(out, records)
	if len(records) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.Record.SequenceID)
	}

	existing, err := r.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return out, nil
	}

	for i := range out {
		eventID, ok := existing[out[i].Record.SequenceID]
		if !ok {
			continue
		}
		out[i].AlreadyProcessed = true
		out[i].ExistingEventID = &eventID
	}

	r.log.Debug("reconciled batch against attendance events",
		zap.Int("records", len(records)),
		zap.Int("already_processed", len(existing)),
	)
	return out, nil
}

func (r *Reconciler) lookup(ctx context.Context, sequenceIDs []int64) (map[int64]snowflake.ID, error) {
	found := make(map[int64]snowflake.ID)
	for start := 0; start < len(sequenceIDs); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(sequenceIDs))

		var rows []existingEvent
		err := r.db.WithContext(ctx).
			Model(&attendancedomain.AttendanceEvent{}).
			Select("id", "ledger_sequence_id").
			Where("ledger_sequence_id IN ?", sequenceIDs[start:end]).
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			found[row.LedgerSequenceID] = row.ID
		}
	}
	return found, nil
}
