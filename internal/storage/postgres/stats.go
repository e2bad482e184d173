package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/socialforge/outreach/internal/domain"
)

// StatsRepo maintains the per-tenant daily rollup. All writes are additive
// upserts so concurrent campaign workers never clobber each other.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed daily-stats repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// StatsDelta is one additive contribution to a tenant's daily rollup.
type StatsDelta struct {
	Sent      int
	Failed    int
	Scored    int
	Contacted int
	Blocks    int
}

// Increment applies the delta to the tenant's row for the given day,
// creating it when absent. The day is truncated to UTC midnight.
func (r *StatsRepo) Increment(ctx context.Context, tenantID string, day time.Time, d StatsDelta) error {
	day = day.UTC().Truncate(24 * time.Hour)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_stats
			(tenant_id, day, dms_sent, dms_failed, leads_scored, leads_contacted, blocks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, day) DO UPDATE SET
			dms_sent = daily_stats.dms_sent + EXCLUDED.dms_sent,
			dms_failed = daily_stats.dms_failed + EXCLUDED.dms_failed,
			leads_scored = daily_stats.leads_scored + EXCLUDED.leads_scored,
			leads_contacted = daily_stats.leads_contacted + EXCLUDED.leads_contacted,
			blocks = daily_stats.blocks + EXCLUDED.blocks
	`, tenantID, day, d.Sent, d.Failed, d.Scored, d.Contacted, d.Blocks)
	if err != nil {
		return fmt.Errorf("increment daily stats: %w", err)
	}
	return nil
}

// Range returns the tenant's rollups for [from, to) in day order.
func (r *StatsRepo) Range(ctx context.Context, tenantID string, from, to time.Time) ([]domain.DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, day, dms_sent, dms_failed, leads_scored, leads_contacted, blocks
		FROM daily_stats
		WHERE tenant_id = $1 AND day >= $2 AND day < $3
		ORDER BY day
	`, tenantID, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("range daily stats: %w", err)
	}
	defer rows.Close()
	return collectStats(rows)
}

// Since returns all tenants' rollups from the given day forward, ordered by
// day then tenant. The warehouse exporter reads this.
func (r *StatsRepo) Since(ctx context.Context, since time.Time) ([]domain.DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, day, dms_sent, dms_failed, leads_scored, leads_contacted, blocks
		FROM daily_stats
		WHERE day >= $1
		ORDER BY day, tenant_id
	`, since.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("daily stats since: %w", err)
	}
	defer rows.Close()
	return collectStats(rows)
}

func collectStats(rows *sql.Rows) ([]domain.DailyStat, error) {
	var out []domain.DailyStat
	for rows.Next() {
		var s domain.DailyStat
		if err := rows.Scan(&s.TenantID, &s.Day, &s.DMsSent, &s.DMsFailed,
			&s.LeadsScored, &s.LeadsContacted, &s.Blocks); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
