package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// TenantRepo persists tenants and their scoring/warm-up configuration.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	rubric, overrides, err := marshalTenantConfig(t)
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tenants
			(id, name, rubric, active_channels, warmup_overrides, news_feed_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, t.ID, t.Name, rubric, pq.Array(t.ActiveChannels), overrides, t.NewsFeedURL)
	if err != nil {
		return "", fmt.Errorf("create tenant: %w", err)
	}
	return t.ID, nil
}

func (r *TenantRepo) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var rubric, overrides []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, rubric, active_channels, warmup_overrides,
		       COALESCE(news_feed_url,''), created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(
		&t.ID, &t.Name, &rubric, pq.Array(&t.ActiveChannels), &overrides,
		&t.NewsFeedURL, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	// A malformed rubric or override blob is a configuration problem, not a
	// read failure: the tenant comes back with the field nil and the scorer
	// falls back to the default rubric.
	if len(rubric) > 0 {
		if err := json.Unmarshal(rubric, &t.Rubric); err != nil {
			logger.Warn("tenant rubric is malformed, ignoring", "tenant_id", t.ID, "error", err.Error())
			t.Rubric = nil
		}
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &t.WarmupOverrides); err != nil {
			logger.Warn("tenant warmup overrides are malformed, ignoring", "tenant_id", t.ID, "error", err.Error())
			t.WarmupOverrides = nil
		}
	}
	return t, nil
}

func (r *TenantRepo) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, active_channels, COALESCE(news_feed_url,''), created_at, updated_at
		FROM tenants
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, pq.Array(&t.ActiveChannels), &t.NewsFeedURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TenantRepo) Update(ctx context.Context, t *domain.Tenant) error {
	rubric, overrides, err := marshalTenantConfig(t)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants
		SET name = $2, rubric = $3, active_channels = $4, warmup_overrides = $5,
		    news_feed_url = $6, updated_at = NOW()
		WHERE id = $1
	`, t.ID, t.Name, rubric, pq.Array(t.ActiveChannels), overrides, t.NewsFeedURL)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// marshalTenantConfig renders the tenant's rubric and warm-up overrides as
// JSON blobs, mapping nil pointers to SQL NULL.
func marshalTenantConfig(t *domain.Tenant) (rubric, overrides []byte, err error) {
	if t.Rubric != nil {
		if rubric, err = json.Marshal(t.Rubric); err != nil {
			return nil, nil, fmt.Errorf("marshal rubric: %w", err)
		}
	}
	if t.WarmupOverrides != nil {
		if overrides, err = json.Marshal(t.WarmupOverrides); err != nil {
			return nil, nil, fmt.Errorf("marshal warmup overrides: %w", err)
		}
	}
	return rubric, overrides, nil
}
