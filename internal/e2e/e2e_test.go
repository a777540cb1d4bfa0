//go:build container

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clockwise/internal/clock"
	"github.com/smallbiznis/clockwise/internal/config"
	employeedomain "github.com/smallbiznis/clockwise/internal/employee/domain"
	"github.com/smallbiznis/clockwise/internal/lease"
	ledgerdomain "github.com/smallbiznis/clockwise/internal/ledger/domain"
	"github.com/smallbiznis/clockwise/internal/migration"
	"github.com/smallbiznis/clockwise/internal/observability"
	scheduledomain "github.com/smallbiznis/clockwise/internal/schedule/domain"
	"github.com/smallbiznis/clockwise/internal/scheduler"
	"github.com/smallbiznis/clockwise/internal/server"
	"github.com/smallbiznis/clockwise/internal/testutil"
	"github.com/smallbiznis/clockwise/pkg/db"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	server    *server.Server
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	genID     *snowflake.Node
	httpSrv   *httptest.Server
	postgres  *testutil.Postgres
}

var env *testEnv

// workday is a Monday.
var workday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	pg, err := testutil.RunPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start postgres:", err)
		os.Exit(1)
	}
	setDefaultEnv(pg)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = pg.Terminate(context.Background())
		os.Exit(1)
	}
	env.postgres = pg

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t, env.db)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_MigrationsCreateSchema(t *testing.T) {
	resetDatabase(t, env.db)

	for _, table := range []string{
		"attendance_ledger",
		"employees",
		"work_schedules",
		"attendance_events",
		"daily_attendance_summaries",
		"ledger_health_logs",
	} {
		if !env.db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestE2E_IngestBuildsDailySummary(t *testing.T) {
	resetDatabase(t, env.db)

	emp := seedEmployee(t, "card-0001")
	seedWeekdaySchedule(t, emp.OrgUnitID)
	testutil.SeedLedger(t, env.db, testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-0001", Kind: ledgerdomain.EventKindTimeIn, At: at(8, 5)},
		testutil.Scan{SequenceID: 2, Token: "card-0001", Kind: ledgerdomain.EventKindBreakStart, At: at(12, 0)},
		testutil.Scan{SequenceID: 3, Token: "card-0001", Kind: ledgerdomain.EventKindBreakEnd, At: at(12, 45)},
		testutil.Scan{SequenceID: 4, Token: "card-0001", Kind: ledgerdomain.EventKindTimeOut, At: at(17, 10)},
	)...)

	if err := env.scheduler.IngestJob(context.Background()); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if n := countRows(t, env.db, "attendance_ledger", "processed = ?", false); n != 0 {
		t.Fatalf("expected ledger drained, %d rows unprocessed", n)
	}
	if n := countRows(t, env.db, "attendance_events", "employee_id = ?", emp.ID); n != 4 {
		t.Fatalf("expected 4 attendance events, got %d", n)
	}

	summary := getSummary(t, emp.ID, workday)
	if !summary.IsPresent {
		t.Fatalf("expected employee present")
	}
	if summary.IsLate {
		t.Fatalf("expected arrival inside the grace period")
	}
	if summary.TimeIn == nil || !summary.TimeIn.Equal(at(8, 5)) {
		t.Fatalf("expected time_in 08:05, got %v", summary.TimeIn)
	}
	if summary.TimeOut == nil || !summary.TimeOut.Equal(at(17, 10)) {
		t.Fatalf("expected time_out 17:10, got %v", summary.TimeOut)
	}
	if summary.BreakMinutes != 45 {
		t.Fatalf("expected 45 break minutes, got %d", summary.BreakMinutes)
	}
	if !summary.LedgerVerified {
		t.Fatalf("expected summary backed by a verified ledger")
	}
	if summary.LedgerSequenceFrom == nil || *summary.LedgerSequenceFrom != 1 ||
		summary.LedgerSequenceTo == nil || *summary.LedgerSequenceTo != 4 {
		t.Fatalf("expected ledger range 1..4, got %v..%v", summary.LedgerSequenceFrom, summary.LedgerSequenceTo)
	}
}

func TestE2E_IngestIsIdempotent(t *testing.T) {
	resetDatabase(t, env.db)

	emp := seedEmployee(t, "card-0002")
	seedWeekdaySchedule(t, emp.OrgUnitID)
	records := testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-0002", Kind: ledgerdomain.EventKindTimeIn, At: at(9, 0)},
		testutil.Scan{SequenceID: 2, Token: "card-0002", Kind: ledgerdomain.EventKindTimeOut, At: at(17, 0)},
	)
	testutil.SeedLedger(t, env.db, records...)

	if err := env.scheduler.IngestJob(context.Background()); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// A crash between insert and mark leaves rows unprocessed; replaying them
	// must not duplicate events.
	if err := env.db.Exec(`UPDATE attendance_ledger SET processed = FALSE, processed_at = NULL`).Error; err != nil {
		t.Fatalf("reset processed flags: %v", err)
	}
	if err := env.scheduler.IngestJob(context.Background()); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if n := countRows(t, env.db, "attendance_events", "employee_id = ?", emp.ID); n != 2 {
		t.Fatalf("expected 2 attendance events after replay, got %d", n)
	}
	if n := countRows(t, env.db, "attendance_ledger", "processed = ?", false); n != 0 {
		t.Fatalf("expected ledger drained after replay, %d rows unprocessed", n)
	}

	summary := getSummary(t, emp.ID, workday)
	if !summary.IsLate {
		t.Fatalf("expected 09:00 arrival to be late against an 08:00 start")
	}
}

func TestE2E_HealthCheckReportsGapsAndTampering(t *testing.T) {
	resetDatabase(t, env.db)

	records := testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-0003", Kind: ledgerdomain.EventKindTimeIn, At: at(8, 0)},
		testutil.Scan{SequenceID: 2, Token: "card-0003", Kind: ledgerdomain.EventKindBreakStart, At: at(12, 0)},
		testutil.Scan{SequenceID: 4, Token: "card-0003", Kind: ledgerdomain.EventKindTimeOut, At: at(17, 0)},
	)
	testutil.SeedLedger(t, env.db, records...)

	entry := runHealthCheck(t)
	if entry.GapCount != 1 {
		t.Fatalf("expected one gap, got %d", entry.GapCount)
	}
	if entry.Status != "warning" {
		t.Fatalf("expected warning for a gap, got %s", entry.Status)
	}

	if err := env.db.Exec(
		`UPDATE attendance_ledger SET raw_payload = ? WHERE sequence_id = ?`,
		`{"token":"card-9999"}`, 2,
	).Error; err != nil {
		t.Fatalf("tamper with payload: %v", err)
	}

	entry = runHealthCheck(t)
	if entry.HashFailureCount == 0 {
		t.Fatalf("expected hash failures after tampering")
	}
	if entry.Status != "critical" {
		t.Fatalf("expected critical after tampering, got %s", entry.Status)
	}

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/ledger/health-checks?page_size=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for health list, got %d: %s", resp.StatusCode, string(body))
	}
	var list struct {
		Data []healthLogRow `json:"data"`
	}
	mustDecode(t, body, &list)
	if len(list.Data) != 2 {
		t.Fatalf("expected 2 stored health logs, got %d", len(list.Data))
	}
	if list.Data[0].Status != "critical" {
		t.Fatalf("expected newest log first, got %s", list.Data[0].Status)
	}
}

func TestE2E_ManualEventCorrectionAndFinalize(t *testing.T) {
	resetDatabase(t, env.db)

	emp := seedEmployee(t, "card-0004")
	seedWeekdaySchedule(t, emp.OrgUnitID)

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/attendance/events", map[string]any{
		"employee_id": emp.ID.String(),
		"event_time":  at(8, 40),
		"event_kind":  "time_in",
		"source":      "manual",
		"recorded_by": "supervisor-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for manual event, got %d: %s", resp.StatusCode, string(body))
	}
	var created struct {
		Data eventRow `json:"data"`
	}
	mustDecode(t, body, &created)

	if summary := getSummary(t, emp.ID, workday); !summary.IsLate {
		t.Fatalf("expected 08:40 arrival to be late")
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/attendance/events/"+created.Data.ID+"/corrections", map[string]any{
		"event_time":   at(8, 0),
		"reason":       "reader offline at gate",
		"corrected_by": "supervisor-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for correction, got %d: %s", resp.StatusCode, string(body))
	}
	var corrected struct {
		Data eventRow `json:"data"`
	}
	mustDecode(t, body, &corrected)
	if corrected.Data.OriginalEventTime == nil || !corrected.Data.OriginalEventTime.Equal(at(8, 40)) {
		t.Fatalf("expected original time preserved, got %v", corrected.Data.OriginalEventTime)
	}
	if len(corrected.Data.Corrections) != 1 {
		t.Fatalf("expected one correction entry, got %d", len(corrected.Data.Corrections))
	}

	if summary := getSummary(t, emp.ID, workday); summary.IsLate {
		t.Fatalf("expected corrected arrival to clear lateness")
	}

	finalizeURL := fmt.Sprintf("%s/api/attendance/summaries/%s/%s/finalize", env.baseURL, emp.ID, workday.Format(time.DateOnly))
	resp, body = doJSON(t, http.MethodPost, finalizeURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for finalize, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/attendance/events/"+created.Data.ID+"/corrections", map[string]any{
		"event_time":   at(8, 10),
		"reason":       "second thoughts",
		"corrected_by": "supervisor-1",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 after finalize, got %d: %s", resp.StatusCode, string(body))
	}

	listURL := fmt.Sprintf("%s/api/attendance/events?employee_id=%s&date=%s", env.baseURL, emp.ID, workday.Format(time.DateOnly))
	resp, body = doJSON(t, http.MethodGet, listURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for event list, got %d: %s", resp.StatusCode, string(body))
	}
	var list struct {
		Data []eventRow `json:"data"`
	}
	mustDecode(t, body, &list)
	if len(list.Data) != 1 || !list.Data[0].EventTime.Equal(at(8, 0)) {
		t.Fatalf("expected the single corrected event, got %+v", list.Data)
	}
}

func TestE2E_LedgerStatsAndPrepare(t *testing.T) {
	resetDatabase(t, env.db)

	seedEmployee(t, "card-0005")
	testutil.SeedLedger(t, env.db, testutil.BuildChain(
		testutil.Scan{SequenceID: 1, Token: "card-0005", Kind: ledgerdomain.EventKindTimeIn, At: at(8, 0)},
		testutil.Scan{SequenceID: 2, Token: "card-0005", Kind: ledgerdomain.EventKindTimeIn, At: at(8, 0).Add(5 * time.Second)},
		testutil.Scan{SequenceID: 3, Token: "unknown-card", Kind: ledgerdomain.EventKindTimeIn, At: at(8, 1)},
	)...)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/ledger/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for stats, got %d: %s", resp.StatusCode, string(body))
	}
	var stats struct {
		Data map[string]any `json:"data"`
	}
	mustDecode(t, body, &stats)
	if got := stats.Data["unprocessed_count"]; got != float64(3) {
		t.Fatalf("expected 3 unprocessed rows, got %v", got)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/ledger/prepare?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for prepare, got %d: %s", resp.StatusCode, string(body))
	}

	// Prepare is a dry run.
	if n := countRows(t, env.db, "attendance_ledger", "processed = ?", false); n != 3 {
		t.Fatalf("expected prepare to leave the ledger untouched, %d unprocessed", n)
	}
	if n := countRows(t, env.db, "attendance_events", "1 = 1"); n != 0 {
		t.Fatalf("expected prepare to write no events, got %d", n)
	}
}

type summaryRow struct {
	IsPresent          bool       `json:"is_present"`
	IsLate             bool       `json:"is_late"`
	TimeIn             *time.Time `json:"time_in"`
	TimeOut            *time.Time `json:"time_out"`
	BreakMinutes       int        `json:"break_minutes"`
	LedgerVerified     bool       `json:"ledger_verified"`
	LedgerSequenceFrom *int64     `json:"ledger_sequence_from"`
	LedgerSequenceTo   *int64     `json:"ledger_sequence_to"`
	IsFinalized        bool       `json:"is_finalized"`
}

type eventRow struct {
	ID                string           `json:"id"`
	EventTime         time.Time        `json:"event_time"`
	OriginalEventTime *time.Time       `json:"original_event_time"`
	Corrections       []map[string]any `json:"corrections"`
}

type healthLogRow struct {
	Status           string `json:"status"`
	GapCount         int64  `json:"gap_count"`
	HashFailureCount int64  `json:"hash_failure_count"`
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		genID       *snowflake.Node
		schedulerSv *scheduler.Scheduler
	)

	app := fx.New(
		observability.Module,
		config.Module,
		db.Module,
		clock.Module,
		migration.Module,
		lease.Module,
		server.Handlers,
		scheduler.Providers,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.NopLogger,
		fx.Populate(&srv, &dbConn, &genID, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		server:    srv,
		db:        dbConn,
		baseURL:   httpSrv.URL,
		scheduler: schedulerSv,
		genID:     genID,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.postgres != nil {
		_ = e.postgres.Terminate(context.Background())
	}
}

func setDefaultEnv(pg *testutil.Postgres) {
	_ = os.Setenv("DATABASE_TYPE", "postgres")
	_ = os.Setenv("DATABASE_HOST", pg.Host)
	_ = os.Setenv("DATABASE_PORT", pg.Port)
	_ = os.Setenv("DATABASE_USER", pg.User)
	_ = os.Setenv("DATABASE_PASSWORD", pg.Password)
	_ = os.Setenv("DATABASE_NAME", pg.Name)
	_ = os.Setenv("REDIS_ADDR", "")
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	if err := truncateAllTables(dbConn); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func truncateAllTables(dbConn *gorm.DB) error {
	type tableRow struct {
		Name string `gorm:"column:tablename"`
	}
	var rows []tableRow
	if err := dbConn.Raw(
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`,
	).Scan(&rows).Error; err != nil {
		return err
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			continue
		}
		tables = append(tables, `"`+row.Name+`"`)
	}
	if len(tables) == 0 {
		return nil
	}

	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	return dbConn.Exec(stmt).Error
}

func at(hour, minute int) time.Time {
	return workday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func seedEmployee(t *testing.T, token string) employeedomain.Employee {
	t.Helper()
	emp := employeedomain.Employee{
		ID:            env.genID.Generate(),
		OrgUnitID:     env.genID.Generate(),
		IdentityToken: token,
		FullName:      "Employee " + token,
		Active:        true,
	}
	if err := env.db.Create(&emp).Error; err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	return emp
}

// seedWeekdaySchedule installs an 08:00-17:00 Monday to Friday schedule with
// a one hour break.
func seedWeekdaySchedule(t *testing.T, orgUnitID snowflake.ID) {
	t.Helper()
	start := datatypes.NewTime(8, 0, 0, 0)
	end := datatypes.NewTime(17, 0, 0, 0)
	schedule := scheduledomain.WorkSchedule{
		ID:                   env.genID.Generate(),
		OrgUnitID:            orgUnitID,
		MondayStart:          &start,
		MondayEnd:            &end,
		TuesdayStart:         &start,
		TuesdayEnd:           &end,
		WednesdayStart:       &start,
		WednesdayEnd:         &end,
		ThursdayStart:        &start,
		ThursdayEnd:          &end,
		FridayStart:          &start,
		FridayEnd:            &end,
		BreakDurationMinutes: 60,
		EffectiveFrom:        datatypes.Date(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	if err := env.db.Create(&schedule).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
}

func getSummary(t *testing.T, employeeID snowflake.ID, date time.Time) summaryRow {
	t.Helper()
	reqURL := fmt.Sprintf("%s/api/attendance/summaries/%s/%s", env.baseURL, employeeID, date.Format(time.DateOnly))
	resp, body := doJSON(t, http.MethodGet, reqURL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for summary, got %d: %s", resp.StatusCode, string(body))
	}
	var out struct {
		Data summaryRow `json:"data"`
	}
	mustDecode(t, body, &out)
	return out.Data
}

func runHealthCheck(t *testing.T) healthLogRow {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/ledger/health-checks", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for health check, got %d: %s", resp.StatusCode, string(body))
	}
	var out struct {
		Data healthLogRow `json:"data"`
	}
	mustDecode(t, body, &out)
	return out.Data
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func mustDecode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func doJSON(t *testing.T, method, reqURL string, payload any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, reqURL, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, body
}
