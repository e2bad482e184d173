package warehouse

import (
	"context"
	"sync"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

const (
	// DefaultExportInterval spaces the export sweeps.
	DefaultExportInterval = 1 * time.Hour
	// DefaultLookback re-reads recent days each sweep so late counter
	// increments still reach the warehouse. MERGE makes the replay safe.
	DefaultLookback = 48 * time.Hour
	// DefaultBackfill bounds the first sweep after a cold start.
	DefaultBackfill = 30 * 24 * time.Hour
)

// StatsSource supplies rollups to export. *postgres.StatsRepo satisfies it.
type StatsSource interface {
	Since(ctx context.Context, since time.Time) ([]domain.DailyStat, error)
}

type statsWriter interface {
	MergeDailyStats(ctx context.Context, stats []domain.DailyStat) error
}

// Exporter periodically pushes the daily rollups into Snowflake.
type Exporter struct {
	writer   statsWriter
	source   StatsSource
	interval time.Duration
	lookback time.Duration
	backfill time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	lastExport time.Time
	lastRows   int
}

// NewExporter creates an exporter over the client and stats source.
func NewExporter(client *Client, source StatsSource) *Exporter {
	return &Exporter{
		writer:   client,
		source:   source,
		interval: DefaultExportInterval,
		lookback: DefaultLookback,
		backfill: DefaultBackfill,
		now:      time.Now,
	}
}

// Run exports until the context is canceled. An immediate sweep runs first.
func (e *Exporter) Run(ctx context.Context) {
	logger.Info("warehouse exporter started", "interval", e.interval.String())
	e.ExportNow(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("warehouse exporter stopped")
			return
		case <-ticker.C:
			e.ExportNow(ctx)
		}
	}
}

// ExportNow runs one sweep. A failed sweep leaves the watermark where it
// was, so the next sweep retries the same window.
func (e *Exporter) ExportNow(ctx context.Context) {
	e.mu.RLock()
	last := e.lastExport
	e.mu.RUnlock()

	var since time.Time
	if last.IsZero() {
		since = e.now().Add(-e.backfill)
	} else {
		since = last.Add(-e.lookback)
	}

	stats, err := e.source.Since(ctx, since)
	if err != nil {
		logger.Warn("warehouse stats read failed", "error", err.Error())
		return
	}

	if len(stats) > 0 {
		if err := e.writer.MergeDailyStats(ctx, stats); err != nil {
			logger.Warn("warehouse export failed", "rows", len(stats), "error", err.Error())
			return
		}
	}

	e.mu.Lock()
	e.lastExport = e.now()
	e.lastRows = len(stats)
	e.mu.Unlock()

	logger.Info("warehouse export complete",
		"rows", len(stats), "since", since.UTC().Format("2006-01-02"))
}

// LastExport returns the time of the last successful sweep.
func (e *Exporter) LastExport() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastExport
}

// LastRows returns the row count of the last successful sweep.
func (e *Exporter) LastRows() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRows
}
