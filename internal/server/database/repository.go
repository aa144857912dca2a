package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrCritiqueNotFound = errors.New("critique not found")

const critiqueColumns = `id, filename, mime_type, size_bytes, image_key,
	deletion_token_hash, created_at, expires_at`

// Repository reads and writes the critiques index.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, c *Critique) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO critiques (`+critiqueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		c.ID,
		c.Filename,
		c.MimeType,
		c.SizeBytes,
		nullable(c.ImageKey),
		c.DeletionTokenHash,
		c.CreatedAt,
		c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to index critique: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Critique, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+critiqueColumns+` FROM critiques WHERE id = $1`, id)
	c, err := scanCritique(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCritiqueNotFound
		}
		return nil, fmt.Errorf("failed to get critique: %w", err)
	}
	return c, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM critiques WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete critique: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCritiqueNotFound
	}
	return nil
}

// GetExpired returns every indexed critique whose expiry has passed.
func (r *Repository) GetExpired(ctx context.Context) ([]*Critique, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+critiqueColumns+` FROM critiques WHERE expires_at < NOW()`)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired critiques: %w", err)
	}
	defer rows.Close()

	var out []*Critique
	for rows.Next() {
		c, err := scanCritique(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired critique: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at > NOW()),
			COALESCE(SUM(size_bytes) FILTER (WHERE expires_at > NOW()), 0)
		FROM critiques
	`).Scan(
		&stats.TotalCritiques,
		&stats.ActiveCritiques,
		&stats.StorageUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func scanCritique(row pgx.Row) (*Critique, error) {
	c := &Critique{}
	var imageKey *string
	if err := row.Scan(
		&c.ID,
		&c.Filename,
		&c.MimeType,
		&c.SizeBytes,
		&imageKey,
		&c.DeletionTokenHash,
		&c.CreatedAt,
		&c.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if imageKey != nil {
		c.ImageKey = *imageKey
	}
	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
