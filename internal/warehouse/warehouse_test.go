package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/socialforge/outreach/internal/domain"
)

func TestParseConnectionString(t *testing.T) {
	connStr := "scheme=https;ACCOUNT=ORG-ACCT123;HOST=ORG-ACCT123.snowflakecomputing.com;port=443;USER=exporter;PASSWORD=secret;DB=OUTREACH_LAKE.ROLLUPS;"

	cfg := ParseConnectionString(connStr)

	if cfg.Account != "ORG-ACCT123" {
		t.Errorf("Account = %q", cfg.Account)
	}
	if cfg.User != "exporter" {
		t.Errorf("User = %q", cfg.User)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %q", cfg.Password)
	}
	if cfg.Database != "OUTREACH_LAKE" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Schema != "ROLLUPS" {
		t.Errorf("Schema = %q", cfg.Schema)
	}
}

func TestParseConnectionStringNoTrailingSemicolon(t *testing.T) {
	cfg := ParseConnectionString("ACCOUNT=a;USER=u;PASSWORD=p;DB=mydb")
	if cfg.Account != "a" {
		t.Errorf("Account = %q", cfg.Account)
	}
	if cfg.Database != "mydb" || cfg.Schema != "" {
		t.Errorf("Database = %q, Schema = %q", cfg.Database, cfg.Schema)
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := Config{Account: "acct", User: "u", Password: "p", Database: "db", Schema: "s"}
	if got := buildDSN(cfg); got != "u:p@acct/db/s" {
		t.Errorf("dsn = %q", got)
	}
	cfg.Warehouse = "wh"
	if got := buildDSN(cfg); got != "u:p@acct/db/s?warehouse=wh" {
		t.Errorf("dsn with warehouse = %q", got)
	}
}

func TestMergeDailyStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	c := &Client{db: db}

	day := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
	stats := []domain.DailyStat{
		{TenantID: "t1", Day: day, DMsSent: 40, DMsFailed: 2, LeadsScored: 90, LeadsContacted: 40, Blocks: 1},
		{TenantID: "t2", Day: day, DMsSent: 12, DMsFailed: 0, LeadsScored: 30, LeadsContacted: 12, Blocks: 0},
	}

	mock.ExpectExec("MERGE INTO OUTREACH_DAILY_STATS").
		WithArgs("t1", "2026-08-24", 40, 2, 90, 40, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("MERGE INTO OUTREACH_DAILY_STATS").
		WithArgs("t2", "2026-08-24", 12, 0, 30, 12, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := c.MergeDailyStats(context.Background(), stats); err != nil {
		t.Fatalf("MergeDailyStats: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMergeDailyStatsStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	c := &Client{db: db}

	mock.ExpectExec("MERGE INTO OUTREACH_DAILY_STATS").
		WillReturnError(errors.New("warehouse suspended"))

	stats := []domain.DailyStat{
		{TenantID: "t1", Day: time.Now()},
		{TenantID: "t2", Day: time.Now()},
	}
	if err := c.MergeDailyStats(context.Background(), stats); err == nil {
		t.Fatal("expected merge error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

type fakeStatsSource struct {
	sinces []time.Time
	stats  []domain.DailyStat
	err    error
}

func (f *fakeStatsSource) Since(_ context.Context, since time.Time) ([]domain.DailyStat, error) {
	f.sinces = append(f.sinces, since)
	return f.stats, f.err
}

type fakeStatsWriter struct {
	batches [][]domain.DailyStat
	err     error
}

func (f *fakeStatsWriter) MergeDailyStats(_ context.Context, stats []domain.DailyStat) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, stats)
	return nil
}

func testExporter(src StatsSource, w statsWriter, now time.Time) *Exporter {
	return &Exporter{
		writer:   w,
		source:   src,
		interval: time.Hour,
		lookback: DefaultLookback,
		backfill: DefaultBackfill,
		now:      func() time.Time { return now },
	}
}

func TestExportNowWindows(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	src := &fakeStatsSource{stats: []domain.DailyStat{{TenantID: "t1", Day: base}}}
	w := &fakeStatsWriter{}
	e := testExporter(src, w, base)

	e.ExportNow(context.Background())
	if got, want := src.sinces[0], base.Add(-DefaultBackfill); !got.Equal(want) {
		t.Errorf("cold-start window = %v, want %v", got, want)
	}
	if !e.LastExport().Equal(base) || e.LastRows() != 1 {
		t.Errorf("watermark not advanced: %v / %d", e.LastExport(), e.LastRows())
	}

	e.ExportNow(context.Background())
	if got, want := src.sinces[1], base.Add(-DefaultLookback); !got.Equal(want) {
		t.Errorf("steady-state window = %v, want %v", got, want)
	}
	if len(w.batches) != 2 {
		t.Errorf("batches = %d, want 2", len(w.batches))
	}
}

func TestExportNowRetriesSameWindowAfterFailure(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	src := &fakeStatsSource{stats: []domain.DailyStat{{TenantID: "t1", Day: base}}}
	w := &fakeStatsWriter{err: errors.New("warehouse down")}
	e := testExporter(src, w, base)

	e.ExportNow(context.Background())
	if !e.LastExport().IsZero() {
		t.Error("failed sweep should not advance the watermark")
	}

	w.err = nil
	e.ExportNow(context.Background())
	if got, want := src.sinces[1], base.Add(-DefaultBackfill); !got.Equal(want) {
		t.Errorf("retry window = %v, want the cold-start window %v", got, want)
	}
	if e.LastRows() != 1 {
		t.Errorf("rows = %d after recovery", e.LastRows())
	}
}

func TestExportNowSourceErrorSkipsWrite(t *testing.T) {
	src := &fakeStatsSource{err: errors.New("db down")}
	w := &fakeStatsWriter{}
	e := testExporter(src, w, time.Now())

	e.ExportNow(context.Background())
	if len(w.batches) != 0 {
		t.Error("writer should not run when the read fails")
	}
	if !e.LastExport().IsZero() {
		t.Error("watermark should not advance on a failed read")
	}
}

func TestExportNowEmptyWindowStillAdvances(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	src := &fakeStatsSource{}
	w := &fakeStatsWriter{}
	e := testExporter(src, w, base)

	e.ExportNow(context.Background())
	if len(w.batches) != 0 {
		t.Error("no rows should mean no merge")
	}
	if !e.LastExport().Equal(base) {
		t.Error("empty sweep should still advance the watermark")
	}
}
