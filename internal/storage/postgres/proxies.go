package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/socialforge/outreach/internal/domain"
)

// ProxyRepo persists proxy endpoints and their health counters. It satisfies
// the proxy pool's repository contract: streak arithmetic happens in SQL so
// two workers reporting outcomes concurrently cannot lose an increment.
type ProxyRepo struct{ db *sql.DB }

// NewProxyRepo creates a Postgres-backed proxy repository.
func NewProxyRepo(db *sql.DB) *ProxyRepo { return &ProxyRepo{db: db} }

// ProxyFilter controls pagination and filtering for proxy lists.
type ProxyFilter struct {
	Active *bool
	Limit  int
	Offset int
}

const proxyColumns = `id, tenant_id, account_id, host, port, COALESCE(username,''),
	       COALESCE(password,''), protocol, COALESCE(provider,''), residential,
	       active, consecutive_failures, success_count, failure_count,
	       created_at, updated_at`

func scanProxy(row rowScanner) (*domain.ProxyConfig, error) {
	p := &domain.ProxyConfig{}
	var accountID sql.NullString
	err := row.Scan(
		&p.ID, &p.TenantID, &accountID, &p.Host, &p.Port, &p.Username,
		&p.Password, &p.Protocol, &p.Provider, &p.Residential,
		&p.Active, &p.ConsecutiveFailures, &p.SuccessCount, &p.FailureCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		p.AccountID = &accountID.String
	}
	return p, nil
}

func (r *ProxyRepo) Create(ctx context.Context, p *domain.ProxyConfig) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Protocol == "" {
		p.Protocol = domain.ProxyHTTP
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proxies
			(id, tenant_id, account_id, host, port, username, password, protocol,
			 provider, residential, active, consecutive_failures, success_count,
			 failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, 0, 0, 0, NOW(), NOW())
	`, p.ID, p.TenantID, nullString(p.AccountID), p.Host, p.Port, p.Username,
		p.Password, p.Protocol, p.Provider, p.Residential)
	if err != nil {
		return "", fmt.Errorf("create proxy: %w", err)
	}
	p.Active = true
	return p.ID, nil
}

func (r *ProxyRepo) Get(ctx context.Context, id string) (*domain.ProxyConfig, error) {
	p, err := scanProxy(r.db.QueryRowContext(ctx,
		`SELECT `+proxyColumns+` FROM proxies WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proxy: %w", err)
	}
	return p, nil
}

func (r *ProxyRepo) List(ctx context.Context, tenantID string, f ProxyFilter) ([]domain.ProxyConfig, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	idx := 2
	if f.Active != nil {
		where += fmt.Sprintf(" AND active = $%d", idx)
		args = append(args, *f.Active)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proxies "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proxies: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM proxies %s ORDER BY created_at LIMIT $%d OFFSET $%d",
		proxyColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proxies: %w", err)
	}
	defer rows.Close()

	var out []domain.ProxyConfig
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan proxy: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// ActiveForAccount returns active proxies pinned to the account, oldest first.
func (r *ProxyRepo) ActiveForAccount(ctx context.Context, accountID string) ([]*domain.ProxyConfig, error) {
	return r.queryActive(ctx,
		`SELECT `+proxyColumns+` FROM proxies WHERE account_id = $1 AND active = true ORDER BY created_at`,
		accountID)
}

// ActiveForTenant returns the tenant's active, unpinned proxies, oldest first.
func (r *ProxyRepo) ActiveForTenant(ctx context.Context, tenantID string) ([]*domain.ProxyConfig, error) {
	return r.queryActive(ctx,
		`SELECT `+proxyColumns+` FROM proxies WHERE tenant_id = $1 AND account_id IS NULL AND active = true ORDER BY created_at`,
		tenantID)
}

func (r *ProxyRepo) queryActive(ctx context.Context, q string, arg interface{}) ([]*domain.ProxyConfig, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list active proxies: %w", err)
	}
	defer rows.Close()

	var out []*domain.ProxyConfig
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proxy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordSuccess increments the success count and resets the failure streak.
func (r *ProxyRepo) RecordSuccess(ctx context.Context, proxyID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proxies
		SET success_count = success_count + 1, consecutive_failures = 0, updated_at = NOW()
		WHERE id = $1
	`, proxyID)
	if err != nil {
		return fmt.Errorf("record proxy success: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure increments the failure count and streak atomically, returning
// the new streak so the pool can apply its deactivation threshold exactly
// once even under concurrent reporters.
func (r *ProxyRepo) RecordFailure(ctx context.Context, proxyID string) (int, error) {
	var streak int
	err := r.db.QueryRowContext(ctx, `
		UPDATE proxies
		SET failure_count = failure_count + 1,
		    consecutive_failures = consecutive_failures + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_failures
	`, proxyID).Scan(&streak)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record proxy failure: %w", err)
	}
	return streak, nil
}

// Deactivate forces the active flag false. Reactivation is an operator
// action, never automatic.
func (r *ProxyRepo) Deactivate(ctx context.Context, proxyID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE proxies SET active = false, updated_at = NOW() WHERE id = $1`, proxyID)
	if err != nil {
		return fmt.Errorf("deactivate proxy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reactivate re-enables a proxy and clears its streak.
func (r *ProxyRepo) Reactivate(ctx context.Context, proxyID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proxies
		SET active = true, consecutive_failures = 0, updated_at = NOW()
		WHERE id = $1
	`, proxyID)
	if err != nil {
		return fmt.Errorf("reactivate proxy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
