package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/smallbiznis/clockwise/internal/attendance/domain"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func TestReconcileMarksMaterializedRecords(t *testing.T) {
	db := testutil.OpenSQLite(t)
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seq := int64(2)
	require.NoError(t, db.Create(&attendancedomain.AttendanceEvent{
		ID:               snowflake.ID(77),
		EmployeeID:       snowflake.ID(1),
		EventDate:        datatypes.Date(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
		EventTime:        at,
		EventKind:        ledgerdomain.EventKindTimeIn,
		LedgerSequenceID: &seq,
		Source:           attendancedomain.EventSourceDevice,
	}).Error)

	input := []ledgerdomain.AnnotatedRecord{
		{Record: ledgerdomain.LedgerRecord{SequenceID: 1}},
		{Record: ledgerdomain.LedgerRecord{SequenceID: 2}},
		{Record: ledgerdomain.LedgerRecord{SequenceID: 3}},
	}

	r := New(Params{DB: db, Log: zap.NewNop()})
	out, err := r.Reconcile(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.False(t, out[0].AlreadyProcessed)
	assert.True(t, out[1].AlreadyProcessed)
	require.NotNil(t, out[1].ExistingEventID)
	assert.Equal(t, snowflake.ID(77), *out[1].ExistingEventID)
	assert.False(t, out[2].AlreadyProcessed)

	assert.False(t, input[1].AlreadyProcessed, "input must not be modified")
}

func TestReconcileEmpty(t *testing.T) {
	r := New(Params{DB: testutil.OpenSQLite(t), Log: zap.NewNop()})
	out, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
