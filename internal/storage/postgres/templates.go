package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/socialforge/outreach/internal/composer"
)

// TemplateSetRepo persists tenant-defined message template sets. It backs
// the composer's template source.
type TemplateSetRepo struct{ db *sql.DB }

// NewTemplateSetRepo creates a Postgres-backed template-set repository.
func NewTemplateSetRepo(db *sql.DB) *TemplateSetRepo { return &TemplateSetRepo{db: db} }

// Upsert creates or replaces a tenant's template set.
func (r *TemplateSetRepo) Upsert(ctx context.Context, tenantID string, set *composer.TemplateSet) error {
	byTier, err := json.Marshal(set.ByTier)
	if err != nil {
		return fmt.Errorf("marshal template set: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO template_sets (tenant_id, name, by_tier, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (tenant_id, name) DO UPDATE SET by_tier = $3, updated_at = NOW()
	`, tenantID, set.Name, byTier)
	if err != nil {
		return fmt.Errorf("upsert template set: %w", err)
	}
	return nil
}

// Get returns the named set, or nil when the tenant has none by that name.
// The nil/no-error shape is the composer's cue to fall back to the built-in
// default set, so absence is deliberately not an error here.
func (r *TemplateSetRepo) Get(ctx context.Context, tenantID, name string) (*composer.TemplateSet, error) {
	var byTier []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT by_tier FROM template_sets WHERE tenant_id = $1 AND name = $2`,
		tenantID, name).Scan(&byTier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template set: %w", err)
	}

	set := &composer.TemplateSet{Name: name}
	if err := json.Unmarshal(byTier, &set.ByTier); err != nil {
		return nil, fmt.Errorf("unmarshal template set %s: %w", name, err)
	}
	return set, nil
}

// List returns all of the tenant's sets ordered by name.
func (r *TemplateSetRepo) List(ctx context.Context, tenantID string) ([]composer.TemplateSet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, by_tier FROM template_sets WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list template sets: %w", err)
	}
	defer rows.Close()

	var out []composer.TemplateSet
	for rows.Next() {
		var set composer.TemplateSet
		var byTier []byte
		if err := rows.Scan(&set.Name, &byTier); err != nil {
			return nil, fmt.Errorf("scan template set: %w", err)
		}
		if err := json.Unmarshal(byTier, &set.ByTier); err != nil {
			return nil, fmt.Errorf("unmarshal template set %s: %w", set.Name, err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}

// Delete removes a tenant's set. Campaigns referencing it fall back to the
// built-in default on their next compose.
func (r *TemplateSetRepo) Delete(ctx context.Context, tenantID, name string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM template_sets WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	if err != nil {
		return fmt.Errorf("delete template set: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
