package entities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Column is a raw information_schema column.
type Column struct {
	Table    string
	Name     string
	DataType string
	UDTName  string
	Nullable bool
	Default  bool
}

// SchemaRepository introspects the database.
type SchemaRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// NewSchemaRepository constructs a repository over schema, "public" when empty.
func NewSchemaRepository(pool *pgxpool.Pool, schema string) *SchemaRepository {
	if schema == "" {
		schema = "public"
	}
	return &SchemaRepository{pool: pool, schema: schema}
}

// Columns lists the columns of every base table, hadmean's own tables excluded.
func (r *SchemaRepository) Columns(ctx context.Context) ([]Column, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.table_name, c.column_name, c.data_type, c.udt_name,
       c.is_nullable = 'YES', c.column_default IS NOT NULL
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE' AND c.table_name NOT LIKE 'hadmean\_%'
ORDER BY c.table_name, c.ordinal_position`, r.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Table, &c.Name, &c.DataType, &c.UDTName, &c.Nullable, &c.Default); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Enums returns enum labels keyed by type name, in sort order.
func (r *SchemaRepository) Enums(ctx context.Context) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.typname, e.enumlabel
FROM pg_type t
JOIN pg_enum e ON e.enumtypid = t.oid
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1
ORDER BY t.typname, e.enumsortorder`, r.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var typ, label string
		if err := rows.Scan(&typ, &label); err != nil {
			return nil, err
		}
		out[typ] = append(out[typ], label)
	}
	return out, rows.Err()
}

// AppConfigRepository reads dashboard settings from hadmean_app_config.
type AppConfigRepository struct {
	pool *pgxpool.Pool
}

// NewAppConfigRepository constructs a repository.
func NewAppConfigRepository(pool *pgxpool.Pool) *AppConfigRepository {
	return &AppConfigRepository{pool: pool}
}

// Get decodes the JSON value of key into dst. Missing keys return ErrNotFound.
func (r *AppConfigRepository) Get(ctx context.Context, key string, dst any) error {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM hadmean_app_config WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("entities: decode app config %s: %w", key, err)
	}
	return nil
}

var (
	_ SchemaPort    = (*SchemaRepository)(nil)
	_ AppConfigPort = (*AppConfigRepository)(nil)
)
