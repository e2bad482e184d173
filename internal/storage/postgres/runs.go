package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialforge/outreach/internal/domain"
)

// RunRepo persists campaign runs: one row per engine execution, carrying the
// run's counters and the serialized rotation state used by pause/resume.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed campaign-run repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

const runColumns = `id, campaign_id, sent, failed, skipped, stop_reason, started_at, finished_at`

func scanRun(row rowScanner) (*domain.CampaignRun, error) {
	run := &domain.CampaignRun{}
	var stopReason sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.CampaignID, &run.Sent, &run.Failed, &run.Skipped,
		&stopReason, &run.StartedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if stopReason.Valid {
		reason := domain.StopReason(stopReason.String)
		run.StopReason = &reason
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func (r *RunRepo) Create(ctx context.Context, run *domain.CampaignRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_runs (id, campaign_id, sent, failed, skipped, started_at)
		VALUES ($1, $2, 0, 0, 0, $3)
	`, run.ID, run.CampaignID, run.StartedAt)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.CampaignRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM campaign_runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Open returns the campaign's unfinished run, or nil when none exists.
// Resume reattaches to this run instead of opening a new one.
func (r *RunRepo) Open(ctx context.Context, campaignID string) (*domain.CampaignRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM campaign_runs
		WHERE campaign_id = $1 AND finished_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, campaignID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	return run, nil
}

// Finish closes the run with its stop reason. A completed run keeps a nil
// reason only if the caller passes none.
func (r *RunRepo) Finish(ctx context.Context, id string, reason *domain.StopReason) error {
	var reasonVal sql.NullString
	if reason != nil {
		reasonVal = sql.NullString{String: string(*reason), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_runs SET stop_reason = $2, finished_at = NOW() WHERE id = $1
	`, id, reasonVal)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Increment adds the deltas to the run's counters atomically.
func (r *RunRepo) Increment(ctx context.Context, id string, sent, failed, skipped int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_runs
		SET sent = sent + $2, failed = failed + $3, skipped = skipped + $4
		WHERE id = $1
	`, id, sent, failed, skipped)
	if err != nil {
		return fmt.Errorf("increment run counters: %w", err)
	}
	return nil
}

func (r *RunRepo) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]domain.CampaignRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM campaign_runs
		WHERE campaign_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// SaveRotation stores the serialized rotation snapshot (cursor + exclusions)
// alongside the run. The worker owns the encoding.
func (r *RunRepo) SaveRotation(ctx context.Context, id string, state []byte) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaign_runs SET rotation_state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("save rotation state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Rotation loads the run's serialized rotation snapshot; nil when the run
// never saved one.
func (r *RunRepo) Rotation(ctx context.Context, id string) ([]byte, error) {
	var state []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT rotation_state FROM campaign_runs WHERE id = $1`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rotation state: %w", err)
	}
	return state, nil
}
