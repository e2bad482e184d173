// Package warehouse exports the per-tenant daily rollups to Snowflake so
// BI dashboards can join outreach volume against revenue data. Exports are
// idempotent MERGEs keyed on (tenant, day); replaying a window is safe.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/socialforge/outreach/internal/domain"
)

// Client provides access to the Snowflake warehouse.
type Client struct {
	config Config
	db     *sql.DB
}

// NewClient opens a Snowflake connection from the config.
func NewClient(cfg Config) (*Client, error) {
	db, err := sql.Open("snowflake", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{config: cfg, db: db}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

const mergeDailyStatsSQL = `
	MERGE INTO OUTREACH_DAILY_STATS t
	USING (SELECT ? AS TENANT_ID, TO_DATE(?) AS DAY, ? AS DMS_SENT, ? AS DMS_FAILED,
		? AS LEADS_SCORED, ? AS LEADS_CONTACTED, ? AS BLOCKS) s
	ON t.TENANT_ID = s.TENANT_ID AND t.DAY = s.DAY
	WHEN MATCHED THEN UPDATE SET
		DMS_SENT = s.DMS_SENT,
		DMS_FAILED = s.DMS_FAILED,
		LEADS_SCORED = s.LEADS_SCORED,
		LEADS_CONTACTED = s.LEADS_CONTACTED,
		BLOCKS = s.BLOCKS,
		EXPORTED_AT = CURRENT_TIMESTAMP()
	WHEN NOT MATCHED THEN INSERT
		(TENANT_ID, DAY, DMS_SENT, DMS_FAILED, LEADS_SCORED, LEADS_CONTACTED, BLOCKS, EXPORTED_AT)
	VALUES
		(s.TENANT_ID, s.DAY, s.DMS_SENT, s.DMS_FAILED, s.LEADS_SCORED, s.LEADS_CONTACTED, s.BLOCKS, CURRENT_TIMESTAMP())
`

// MergeDailyStats upserts the rollup rows. Each row carries the full
// current counters for its day, so replaying a window overwrites rather
// than double-counts.
func (c *Client) MergeDailyStats(ctx context.Context, stats []domain.DailyStat) error {
	for _, s := range stats {
		day := s.Day.UTC().Format("2006-01-02")
		_, err := c.db.ExecContext(ctx, mergeDailyStatsSQL,
			s.TenantID, day, s.DMsSent, s.DMsFailed, s.LeadsScored, s.LeadsContacted, s.Blocks)
		if err != nil {
			return fmt.Errorf("failed to merge stats for %s/%s: %w", s.TenantID, day, err)
		}
	}
	return nil
}
