package credentials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists sealed credentials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the records of group ordered by key.
func (r *Repository) List(ctx context.Context, group string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT "group", key, value FROM hadmean_credentials WHERE "group" = $1 ORDER BY key`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Group, &rec.Key, &rec.Sealed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one record.
func (r *Repository) Get(ctx context.Context, group, key string) (Record, error) {
	rec := Record{Group: group, Key: key}
	err := r.pool.QueryRow(ctx, `SELECT value FROM hadmean_credentials WHERE "group" = $1 AND key = $2`, group, key).Scan(&rec.Sealed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Upsert inserts or replaces a record.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO hadmean_credentials ("group", key, value, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT ("group", key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, rec.Group, rec.Key, rec.Sealed)
	return err
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, group, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM hadmean_credentials WHERE "group" = $1 AND key = $2`, group, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
