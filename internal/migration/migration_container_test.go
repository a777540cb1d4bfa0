//go:build container

package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/ledger/poller"
	"github.com/smallbiznis/clockwise/internal/ledger/repository"
	"github.com/smallbiznis/clockwise/internal/migration"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open(testutil.StartPostgres(t)), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPostgresMigrationsUpDown(t *testing.T) {
	db := openPostgres(t)

	require.NoError(t, migration.Run(db))
	require.NoError(t, migration.Run(db))
	assert.True(t, db.Migrator().HasTable("attendance_ledger"))
	assert.True(t, db.Migrator().HasIndex("attendance_ledger", "ix_attendance_ledger_unprocessed"))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, migration.Rollback(sqlDB))
	assert.False(t, db.Migrator().HasTable("attendance_ledger"))
	assert.False(t, db.Migrator().HasTable("ledger_health_logs"))
}

func TestPostgresPollerOrdersAndMarks(t *testing.T) {
	db := openPostgres(t)
	require.NoError(t, migration.Run(db))

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	records := testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-1", Kind: ledgerdomain.EventKindTimeIn, At: start},
		testutil.Scan{SequenceID: 2, Token: "card-2", Kind: ledgerdomain.EventKindTimeIn, At: start.Add(time.Minute)},
		testutil.Scan{SequenceID: 3, Token: "card-1", Kind: ledgerdomain.EventKindTimeOut, At: start.Add(9 * time.Hour)},
	)
	testutil.SeedLedger(t, db, records...)

	p := poller.New(poller.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(start.Add(10 * time.Hour)),
		Rules: config.NewStaticRulesHolder(config.DefaultRulesConfig()),
	})

	ctx := context.Background()
	rows, err := p.PollNew(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].SequenceID)
	assert.Equal(t, int64(2), rows[1].SequenceID)
	assert.JSONEq(t, string(records[0].RawPayload), string(rows[0].RawPayload))

	marked, err := p.MarkProcessed(ctx, rows, start.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	rest, err := p.PollNew(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0].SequenceID)
}
