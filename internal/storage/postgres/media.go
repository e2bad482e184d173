package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/socialforge/outreach/internal/media"
)

// MediaRepo persists attachment asset metadata. It satisfies the media
// pipeline's store contract.
type MediaRepo struct{ db *sql.DB }

// NewMediaRepo creates a Postgres-backed media repository.
func NewMediaRepo(db *sql.DB) *MediaRepo { return &MediaRepo{db: db} }

const mediaColumns = `id, tenant_id, filename, content_type, size, width, height,
	       s3_key, s3_key_send, s3_key_thumb, url, url_send, url_thumb,
	       checksum, created_at`

func scanAsset(row rowScanner) (*media.Asset, error) {
	a := &media.Asset{}
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Filename, &a.ContentType, &a.Size, &a.Width,
		&a.Height, &a.Key, &a.KeySend, &a.KeyThumb, &a.URL, &a.URLSend,
		&a.URLThumb, &a.Checksum, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *MediaRepo) Save(ctx context.Context, a *media.Asset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_assets
			(id, tenant_id, filename, content_type, size, width, height,
			 s3_key, s3_key_send, s3_key_thumb, url, url_send, url_thumb,
			 checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.TenantID, a.Filename, a.ContentType, a.Size, a.Width, a.Height,
		a.Key, a.KeySend, a.KeyThumb, a.URL, a.URLSend, a.URLThumb,
		a.Checksum, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save media asset: %w", err)
	}
	return nil
}

func (r *MediaRepo) Get(ctx context.Context, id string) (*media.Asset, error) {
	a, err := scanAsset(r.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media_assets WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media asset: %w", err)
	}
	return a, nil
}

func (r *MediaRepo) ListByTenant(ctx context.Context, tenantID string) ([]media.Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media_assets WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var out []media.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *MediaRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media asset: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
