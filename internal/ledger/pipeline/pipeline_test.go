package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	"github.com/smallbiznis/clockwise/internal/ledger/reconcile"
	"github.com/smallbiznis/clockwise/internal/ledger/repository"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) (*Pipeline, *gorm.DB) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	log := zap.NewNop()
	rules := config.NewStaticRulesHolder(config.DefaultRulesConfig())
	p := poller.New(poller.Params{
		DB:    db,
		Log:   log,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(start),
		Rules: rules,
	})
	return New(Params{
		Log:        log,
		Poller:     p,
		Reconciler: reconcile.New(reconcile.Params{DB: db, Log: log}),
		Rules:      rules,
	}), db
}

func materialize(t *testing.T, db *gorm.DB, id int64, record ledgerdomain.LedgerRecord) {
	t.Helper()
	seq := record.SequenceID
	require.NoError(t, db.Create(&attendancedomain.AttendanceEvent{
		ID:               snowflake.ID(id),
		EmployeeID:       snowflake.ID(1),
		EventDate:        datatypes.Date(clock.DateIn(record.ScanTimestamp, time.UTC)),
		EventTime:        record.ScanTimestamp,
		EventKind:        record.EventKind,
		LedgerSequenceID: &seq,
		Source:           attendancedomain.EventSourceDevice,
	}).Error)
}

func TestPrepareComposesStages(t *testing.T) {
	pl, db := newTestPipeline(t)
	records := testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start},
		testutil.Scan{SequenceID: 2, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start.Add(10 * time.Second)},
		testutil.Scan{SequenceID: 3, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start.Add(20 * time.Second)},
		testutil.Scan{SequenceID: 4, Token: "card-2", Kind: ledgerdomain.EventKindTimeIn, At: start.Add(30 * time.Second)},
		testutil.Scan{SequenceID: 5, Token: "card-2", Kind: ledgerdomain.EventKindTimeIn, At: start.Add(35 * time.Second)},
	)
	testutil.SeedLedger(t, db, records...)
	// 4 was materialized before a crash; 5 is both a duplicate and materialized
	materialize(t, db, 100, records[3])
	materialize(t, db, 101, records[4])

	batch, err := pl.Prepare(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, ledgerdomain.BatchStats{
		Total:            5,
		Duplicates:       2,
		AlreadyProcessed: 1,
		Unique:           2,
	}, batch.Stats)

	ids := make([]int64, 0, len(batch.Processable))
	for _, row := range batch.Processable {
		ids = append(ids, row.SequenceID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
	assert.LessOrEqual(t, len(batch.Processable), batch.Stats.Unique)

	require.Len(t, batch.Records, 5)
	assert.True(t, batch.Records[1].Dedup.IsDuplicate)
	assert.True(t, batch.Records[3].AlreadyProcessed)
	assert.True(t, batch.Records[4].Dedup.IsDuplicate)
	assert.True(t, batch.Records[4].AlreadyProcessed)
}

func TestPrepareIsSideEffectFree(t *testing.T) {
	pl, db := newTestPipeline(t)
	testutil.SeedLedger(t, db, testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start},
		testutil.Scan{SequenceID: 2, Token: "card-1", Kind: ledgerdomain.EventKindTimeOut, At: start.Add(8 * time.Hour)},
	)...)

	first, err := pl.Prepare(context.Background(), 0)
	require.NoError(t, err)
	second, err := pl.Prepare(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Len(t, second.Processable, 2)
}

func TestPrepareEmpty(t *testing.T) {
	pl, _ := newTestPipeline(t)

	batch, err := pl.Prepare(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.BatchStats{}, batch.Stats)
	assert.Empty(t, batch.Processable)
	assert.Empty(t, batch.Records)
}

func TestPrepareFromAndMarkProcessed(t *testing.T) {
	pl, db := newTestPipeline(t)
	records := testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start},
		testutil.Scan{SequenceID: 2, Token: "card-2", Kind: ledgerdomain.EventKindTimeIn, At: start},
		testutil.Scan{SequenceID: 3, Token: "card-3", Kind: ledgerdomain.EventKindTimeIn, At: start},
	)
	testutil.SeedLedger(t, db, records...)

	batch, err := pl.PrepareFrom(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Stats.Total)

	updated, err := pl.MarkProcessed(context.Background(), batch.Processable, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	rest, err := pl.Prepare(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rest.Processable, 1)
	assert.Equal(t, int64(1), rest.Processable[0].SequenceID)
}

func TestAssembleProcessableNeverExceedsUnique(t *testing.T) {
	combos := []ledgerdomain.AnnotatedRecord{
		{},
		{Dedup: ledgerdomain.DedupVerdict{IsDuplicate: true}},
		{AlreadyProcessed: true},
		{Dedup: ledgerdomain.DedupVerdict{IsDuplicate: true}, AlreadyProcessed: true},
	}
	for mask := 0; mask < 1<<len(combos); mask++ {
		var records []ledgerdomain.AnnotatedRecord
		for i, c := range combos {
			if mask&(1<<i) != 0 {
				records = append(records, c, c)
			}
		}
		batch := Assemble(records)
		assert.LessOrEqual(t, len(batch.Processable), batch.Stats.Unique)
		assert.Equal(t, batch.Stats.Total, batch.Stats.Duplicates+batch.Stats.AlreadyProcessed+batch.Stats.Unique)
	}
}
