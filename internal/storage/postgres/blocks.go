package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialforge/outreach/internal/domain"
)

// BlockEventRepo persists the append-only block audit trail.
type BlockEventRepo struct{ db *sql.DB }

// NewBlockEventRepo creates a Postgres-backed block-event repository.
func NewBlockEventRepo(db *sql.DB) *BlockEventRepo { return &BlockEventRepo{db: db} }

// BlockFilter narrows block event lists. Zero-valued fields are ignored.
type BlockFilter struct {
	TenantID   string
	CampaignID string
	AccountID  string
	Type       string
	Since      time.Time
	Limit      int
	Offset     int
}

func (r *BlockEventRepo) Create(ctx context.Context, e *domain.BlockEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO block_events
			(id, tenant_id, campaign_id, account_id, type, evidence, evidence_ref, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.TenantID, e.CampaignID, e.AccountID, e.Type, e.Evidence,
		nullString(e.EvidenceRef), e.DetectedAt)
	if err != nil {
		return fmt.Errorf("create block event: %w", err)
	}
	return nil
}

func (r *BlockEventRepo) List(ctx context.Context, f BlockFilter) ([]domain.BlockEvent, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND %s = $%d", cond, idx)
		args = append(args, val)
		idx++
	}
	if f.TenantID != "" {
		add("tenant_id", f.TenantID)
	}
	if f.CampaignID != "" {
		add("campaign_id", f.CampaignID)
	}
	if f.AccountID != "" {
		add("account_id", f.AccountID)
	}
	if f.Type != "" {
		add("type", f.Type)
	}
	if !f.Since.IsZero() {
		where += fmt.Sprintf(" AND detected_at >= $%d", idx)
		args = append(args, f.Since)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM block_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count block events: %w", err)
	}

	q := fmt.Sprintf(`
		SELECT id, tenant_id, campaign_id, account_id, type, evidence, evidence_ref, detected_at
		FROM block_events %s
		ORDER BY detected_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list block events: %w", err)
	}
	defer rows.Close()

	var out []domain.BlockEvent
	for rows.Next() {
		var e domain.BlockEvent
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CampaignID, &e.AccountID,
			&e.Type, &e.Evidence, &ref, &e.DetectedAt); err != nil {
			return nil, 0, fmt.Errorf("scan block event: %w", err)
		}
		if ref.Valid {
			e.EvidenceRef = &ref.String
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CountSince returns how many blocks the tenant accumulated since the given
// instant. The alerting threshold reads this.
func (r *BlockEventRepo) CountSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM block_events WHERE tenant_id = $1 AND detected_at >= $2`,
		tenantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count block events since: %w", err)
	}
	return n, nil
}
