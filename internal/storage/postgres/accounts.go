package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialforge/outreach/internal/domain"
)

// AccountRepo persists sending accounts. It satisfies the rotation account
// source and the warm-up account store.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed sending-account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// AccountFilter controls pagination and filtering for account lists.
type AccountFilter struct {
	Stage       string
	BlockStatus string
	Limit       int
	Offset      int
}

const accountColumns = `id, tenant_id, username, session_ref, stage, warmup_anchor_at,
	       block_status, blocked_until, proxy_id, total_sent, last_active_at,
	       created_at, updated_at`

func scanAccount(row rowScanner) (*domain.SendingAccount, error) {
	a := &domain.SendingAccount{}
	var blockedUntil, lastActive sql.NullTime
	var proxyID sql.NullString
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Username, &a.SessionRef, &a.Stage, &a.WarmupAnchorAt,
		&a.BlockStatus, &blockedUntil, &proxyID, &a.TotalSent, &lastActive,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if blockedUntil.Valid {
		a.BlockedUntil = &blockedUntil.Time
	}
	if proxyID.Valid {
		a.ProxyID = &proxyID.String
	}
	if lastActive.Valid {
		a.LastActiveAt = &lastActive.Time
	}
	return a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.SendingAccount) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Stage == "" {
		a.Stage = domain.StageNew
	}
	if a.BlockStatus == "" {
		a.BlockStatus = domain.BlockNone
	}
	if a.WarmupAnchorAt.IsZero() {
		a.WarmupAnchorAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sending_accounts
			(id, tenant_id, username, session_ref, stage, warmup_anchor_at,
			 block_status, blocked_until, proxy_id, total_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NOW(), NOW())
	`, a.ID, a.TenantID, a.Username, a.SessionRef, a.Stage, a.WarmupAnchorAt,
		a.BlockStatus, nullTime(a.BlockedUntil), nullString(a.ProxyID))
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	return a.ID, nil
}

// Get returns a single account by ID. Rotation loads fresh state through this
// on every pick so block flags applied mid-run are honored.
func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.SendingAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sending_accounts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, tenantID string, f AccountFilter) ([]domain.SendingAccount, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	idx := 2
	if f.Stage != "" {
		where += fmt.Sprintf(" AND stage = $%d", idx)
		args = append(args, f.Stage)
		idx++
	}
	if f.BlockStatus != "" {
		where += fmt.Sprintf(" AND block_status = $%d", idx)
		args = append(args, f.BlockStatus)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sending_accounts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM sending_accounts %s ORDER BY created_at LIMIT $%d OFFSET $%d",
		accountColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.SendingAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// SelectableForTenant returns the tenant's accounts plus the shared global
// pool, excluding hard-blocked ones, in creation order. Campaign creation
// builds its rotation pool from this.
func (r *AccountRepo) SelectableForTenant(ctx context.Context, tenantID string) ([]domain.SendingAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM sending_accounts
		WHERE tenant_id IN ($1, $2) AND block_status <> 'hard'
		ORDER BY created_at
	`, tenantID, domain.GlobalTenantID)
	if err != nil {
		return nil, fmt.Errorf("selectable accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.SendingAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateWarmup persists a stage change together with its anchor rebase.
func (r *AccountRepo) UpdateWarmup(ctx context.Context, accountID string, stage domain.WarmupStage, anchor time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET stage = $2, warmup_anchor_at = $3, updated_at = NOW()
		WHERE id = $1
	`, accountID, stage, anchor)
	if err != nil {
		return fmt.Errorf("update warmup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyBlock records a detected restriction. until is only meaningful for
// soft blocks and is NULL otherwise.
func (r *AccountRepo) ApplyBlock(ctx context.Context, accountID string, status domain.BlockStatus, until *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET block_status = $2, blocked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, accountID, status, nullTime(until))
	if err != nil {
		return fmt.Errorf("apply block: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearBlock lifts a block. This is an operator action; hard blocks are
// never cleared automatically.
func (r *AccountRepo) ClearBlock(ctx context.Context, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET block_status = 'none', blocked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("clear block: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSend bumps the cumulative counter atomically and stamps activity.
func (r *AccountRepo) RecordSend(ctx context.Context, accountID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts
		SET total_sent = total_sent + 1, last_active_at = $2, updated_at = NOW()
		WHERE id = $1
	`, accountID, at)
	if err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignProxy pins a proxy to the account; nil unpins.
func (r *AccountRepo) AssignProxy(ctx context.Context, accountID string, proxyID *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts SET proxy_id = $2, updated_at = NOW() WHERE id = $1
	`, accountID, nullString(proxyID))
	if err != nil {
		return fmt.Errorf("assign proxy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSession replaces the account's session reference after a re-login.
func (r *AccountRepo) UpdateSession(ctx context.Context, accountID, sessionRef string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_accounts SET session_ref = $2, updated_at = NOW() WHERE id = $1
	`, accountID, sessionRef)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString maps a nil *string to SQL NULL.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
