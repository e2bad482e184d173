package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL, plus the
// counter and polling methods the worker needs.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, tenant_id, name, query, account_pool, COALESCE(template_set,''),
	       media_id, delay_min_minutes, delay_max_minutes, min_score,
	       status, stop_reason, sent_count, failed_count, skipped_count,
	       started_at, finished_at, created_at, updated_at`

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var mediaID, stopReason sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Query, pq.Array(&c.AccountPool), &c.TemplateSet,
		&mediaID, &c.DelayMinMinutes, &c.DelayMaxMinutes, &c.MinScore,
		&c.Status, &stopReason, &c.SentCount, &c.FailedCount, &c.SkippedCount,
		&startedAt, &finishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if mediaID.Valid {
		c.MediaID = &mediaID.String
	}
	if stopReason.Valid {
		reason := domain.StopReason(stopReason.String)
		c.StopReason = &reason
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		c.FinishedAt = &finishedAt.Time
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND tenant_id = $2`,
		id, tenantID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// GetByID loads a campaign without tenant scoping. The worker holds campaign
// IDs only; tenant checks happened when the campaign was started.
func (r *CampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		campaignColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, tenant_id, name, query, account_pool, template_set, media_id,
			 delay_min_minutes, delay_max_minutes, min_score, status,
			 sent_count, failed_count, skipped_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, 0, NOW(), NOW())
	`, c.ID, c.TenantID, c.Name, c.Query, pq.Array(c.AccountPool), c.TemplateSet,
		nullString(c.MediaID), c.DelayMinMinutes, c.DelayMaxMinutes, c.MinScore, c.Status)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Update(ctx context.Context, tenantID, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Query != nil {
		add("query", *u.Query)
	}
	if u.TemplateSet != nil {
		add("template_set", *u.TemplateSet)
	}
	if u.MediaID != nil {
		add("media_id", *u.MediaID)
	}
	if u.DelayMinMinutes != nil {
		add("delay_min_minutes", *u.DelayMinMinutes)
	}
	if u.DelayMaxMinutes != nil {
		add("delay_max_minutes", *u.DelayMaxMinutes)
	}
	if u.MinScore != nil {
		add("min_score", *u.MinScore)
	}
	if u.AccountPool != nil {
		add("account_pool", pq.Array(*u.AccountPool))
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d AND tenant_id = $%d",
		joinComma(sets), idx, idx+1)
	args = append(args, id, tenantID)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND tenant_id = $2 AND status IN ('pending','stopped','completed')
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// Transition performs the compare-and-swap status change. started_at is
// stamped on the first move to running, finished_at on any terminal move,
// and the stop reason column is written verbatim (nil clears it).
func (r *CampaignRepo) Transition(ctx context.Context, id string, from, to domain.CampaignStatus, reason *domain.StopReason) error {
	var reasonVal sql.NullString
	if reason != nil {
		reasonVal = sql.NullString{String: string(*reason), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2,
		    stop_reason = $3,
		    started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    finished_at = CASE WHEN $2 IN ('stopped','completed') THEN NOW() ELSE finished_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, to, reasonVal, from)
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	// Zero rows means the CAS lost: either the row is gone or another actor
	// moved the status first.
	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check campaign status: %w", err)
	}
	return campaign.ErrInvalidTransition
}

// IncrementCounters adds the deltas to the campaign's lifetime counters.
func (r *CampaignRepo) IncrementCounters(ctx context.Context, id string, sent, failed, skipped int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = sent_count + $2,
		    failed_count = failed_count + $3,
		    skipped_count = skipped_count + $4,
		    updated_at = NOW()
		WHERE id = $1
	`, id, sent, failed, skipped)
	if err != nil {
		return fmt.Errorf("increment campaign counters: %w", err)
	}
	return nil
}

// Running returns every campaign currently in running status, oldest first.
// The engine supervisor polls this to claim work.
func (r *CampaignRepo) Running(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = 'running' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
