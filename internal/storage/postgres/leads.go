package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/socialforge/outreach/internal/domain"
)

// LeadRepo persists discovered leads. Leads are never deleted, only
// status-transitioned.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

// LeadFilter controls pagination and filtering for lead lists.
type LeadFilter struct {
	Status   string
	Tier     string
	MinScore int
	Search   string
	Limit    int
	Offset   int
}

// TargetFilter selects the next batch of outreach targets for a campaign.
// AfterCreated/AfterID form a keyset cursor so a restarted run continues
// where it left off instead of re-reading from the top.
type TargetFilter struct {
	MinScore     int
	AfterCreated time.Time
	AfterID      string
	BatchSize    int
}

const leadColumns = `id, tenant_id, username, COALESCE(full_name,''), COALESCE(bio,''),
	       follower_count, following_count, post_count, engagement_rate,
	       is_verified, is_private, is_business, COALESCE(category,''),
	       COALESCE(location,''), COALESCE(external_url,''), COALESCE(source,''),
	       recent_posts, last_activity_at, score, tier, is_decisor,
	       matched_interests, status, contacted_at, created_at, updated_at`

func scanLead(row rowScanner) (*domain.Lead, error) {
	l := &domain.Lead{}
	var lastActivity, contacted sql.NullTime
	err := row.Scan(
		&l.ID, &l.TenantID, &l.Username, &l.FullName, &l.Bio,
		&l.FollowerCount, &l.FollowingCount, &l.PostCount, &l.EngagementRate,
		&l.IsVerified, &l.IsPrivate, &l.IsBusiness, &l.Category,
		&l.Location, &l.ExternalURL, &l.Source,
		&l.RecentPosts, &lastActivity, &l.Score, &l.Tier, &l.IsDecisor,
		pq.Array(&l.MatchedInterests), &l.Status, &contacted, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastActivity.Valid {
		l.LastActivityAt = &lastActivity.Time
	}
	if contacted.Valid {
		l.ContactedAt = &contacted.Time
	}
	return l, nil
}

// Upsert inserts a lead or refreshes the profile fields of an existing one.
// Score, status, and contact history are never clobbered by a re-discovery.
// The lead's ID is set to the stored row's ID either way.
func (r *LeadRepo) Upsert(ctx context.Context, l *domain.Lead) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = domain.LeadNew
	}
	if l.Tier == "" {
		l.Tier = domain.TierNurturing
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO leads
			(id, tenant_id, username, full_name, bio, follower_count, following_count,
			 post_count, engagement_rate, is_verified, is_private, is_business,
			 category, location, external_url, source, recent_posts, last_activity_at,
			 score, tier, is_decisor, matched_interests, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			 $17, $18, $19, $20, $21, $22, $23, NOW(), NOW())
		ON CONFLICT (tenant_id, username) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			bio = EXCLUDED.bio,
			follower_count = EXCLUDED.follower_count,
			following_count = EXCLUDED.following_count,
			post_count = EXCLUDED.post_count,
			engagement_rate = EXCLUDED.engagement_rate,
			is_verified = EXCLUDED.is_verified,
			is_private = EXCLUDED.is_private,
			is_business = EXCLUDED.is_business,
			category = EXCLUDED.category,
			location = EXCLUDED.location,
			external_url = EXCLUDED.external_url,
			recent_posts = EXCLUDED.recent_posts,
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = NOW()
		RETURNING id
	`, l.ID, l.TenantID, l.Username, l.FullName, l.Bio, l.FollowerCount, l.FollowingCount,
		l.PostCount, l.EngagementRate, l.IsVerified, l.IsPrivate, l.IsBusiness,
		l.Category, l.Location, l.ExternalURL, l.Source, l.RecentPosts, nullTime(l.LastActivityAt),
		l.Score, l.Tier, l.IsDecisor, pq.Array(l.MatchedInterests), l.Status,
	).Scan(&l.ID)
	if err != nil {
		return "", fmt.Errorf("upsert lead: %w", err)
	}
	return l.ID, nil
}

func (r *LeadRepo) Get(ctx context.Context, id string) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ByUsername looks a lead up by its handle inside a tenant.
func (r *LeadRepo) ByUsername(ctx context.Context, tenantID, username string) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND username = $2`,
		tenantID, username))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by username: %w", err)
	}
	return l, nil
}

func (r *LeadRepo) List(ctx context.Context, tenantID string, f LeadFilter) ([]domain.Lead, int, error) {
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
	if f.Tier != "" {
		where += fmt.Sprintf(" AND tier = $%d", idx)
		args = append(args, f.Tier)
		idx++
	}
	if f.MinScore > 0 {
		where += fmt.Sprintf(" AND score >= $%d", idx)
		args = append(args, f.MinScore)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (username ILIKE $%d OR full_name ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM leads %s ORDER BY score DESC, created_at DESC LIMIT $%d OFFSET $%d",
		leadColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

// SetScore writes the scoring result. A lead still in status new advances to
// scored; contacted/responded leads keep their status on rescore.
func (r *LeadRepo) SetScore(ctx context.Context, id string, score int, tier domain.LeadTier, decisor bool, interests []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET score = $2, tier = $3, is_decisor = $4, matched_interests = $5,
		    status = CASE WHEN status = 'new' THEN 'scored' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, score, tier, decisor, pq.Array(interests))
	if err != nil {
		return fmt.Errorf("set lead score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkContacted records the outreach timestamp. The call is idempotent: a
// lead already contacted or responded is left untouched and no error is
// returned, which is what the restart/resume path relies on.
func (r *LeadRepo) MarkContacted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET status = 'contacted', contacted_at = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('contacted', 'responded')
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark lead contacted: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lead status directly (responded/failed transitions
// driven by operators or reply detection).
func (r *LeadRepo) UpdateStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Targets returns the next FIFO batch of uncontacted leads at or above the
// score line. Ordering is (created_at, id) ascending so the keyset cursor is
// total and restartable.
func (r *LeadRepo) Targets(ctx context.Context, tenantID string, f TargetFilter) ([]domain.Lead, error) {
	batch := f.BatchSize
	if batch <= 0 {
		batch = 100
	}
	after := f.AfterCreated
	if after.IsZero() {
		after = time.Unix(0, 0).UTC()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1
		  AND status IN ('new', 'scored')
		  AND score >= $2
		  AND (created_at, id) > ($3, $4)
		ORDER BY created_at, id
		LIMIT $5
	`, tenantID, f.MinScore, after, f.AfterID, batch)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// nullTime maps a nil *time.Time to SQL NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
