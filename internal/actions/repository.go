package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hadmean/hadmean/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for activations and instances.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activationColumns = `id, integration_key, configuration, created_at`

const instanceColumns = `id, integration_key, entity, form_action, implementation_key, configuration, created_at, updated_at`

// CreateActivation inserts an activation. A second activation of the same
// integration fails with ErrAlreadyActive.
func (r *Repository) CreateActivation(ctx context.Context, a Activation) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO hadmean_action_activations (`+activationColumns+`) VALUES ($1, $2, $3, $4)`,
		a.ID, a.IntegrationKey, a.Sealed, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyActive
		}
		return err
	}
	return nil
}

// GetActivation fetches an activation by ID.
func (r *Repository) GetActivation(ctx context.Context, id string) (Activation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activationColumns+` FROM hadmean_action_activations WHERE id = $1`, id)
	return scanActivation(row)
}

// GetActivationByKey fetches the activation of an integration.
func (r *Repository) GetActivationByKey(ctx context.Context, key string) (Activation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activationColumns+` FROM hadmean_action_activations WHERE integration_key = $1`, key)
	return scanActivation(row)
}

// ListActivations returns all activations ordered by creation.
func (r *Repository) ListActivations(ctx context.Context) ([]Activation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+activationColumns+` FROM hadmean_action_activations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateActivation replaces the sealed configuration.
func (r *Repository) UpdateActivation(ctx context.Context, id, sealed string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE hadmean_action_activations SET configuration = $2 WHERE id = $1`, id, sealed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteActivation removes an activation and the instances of its integration.
func (r *Repository) DeleteActivation(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var key string
		err := tx.QueryRow(ctx, `DELETE FROM hadmean_action_activations WHERE id = $1 RETURNING integration_key`, id).Scan(&key)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM hadmean_action_instances WHERE integration_key = $1`, key); err != nil {
			return fmt.Errorf("actions: delete instances of %s: %w", key, err)
		}
		return nil
	})
}

// ListInstances returns instances matching filter.
func (r *Repository) ListInstances(ctx context.Context, filter InstanceFilter) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+instanceColumns+` FROM hadmean_action_instances
WHERE ($1 = '' OR entity = $1) AND ($2 = '' OR integration_key = $2)
ORDER BY created_at, id`, filter.Entity, filter.IntegrationKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// GetInstance fetches an instance by ID.
func (r *Repository) GetInstance(ctx context.Context, id string) (Instance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM hadmean_action_instances WHERE id = $1`, id)
	return scanInstance(row)
}

// CreateInstance inserts an instance.
func (r *Repository) CreateInstance(ctx context.Context, in Instance) error {
	config, err := json.Marshal(in.Configuration)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO hadmean_action_instances (`+instanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.ID, in.IntegrationKey, in.Entity, string(in.FormAction), in.ImplementationKey, config, in.CreatedAt, in.UpdatedAt)
	return err
}

// UpdateInstance replaces an instance definition.
func (r *Repository) UpdateInstance(ctx context.Context, in Instance) error {
	config, err := json.Marshal(in.Configuration)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE hadmean_action_instances
SET integration_key = $2, entity = $3, form_action = $4, implementation_key = $5, configuration = $6, updated_at = $7
WHERE id = $1`, in.ID, in.IntegrationKey, in.Entity, string(in.FormAction), in.ImplementationKey, config, in.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstance removes an instance.
func (r *Repository) DeleteInstance(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM hadmean_action_instances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanActivation(row pgx.Row) (Activation, error) {
	var a Activation
	if err := row.Scan(&a.ID, &a.IntegrationKey, &a.Sealed, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Activation{}, ErrNotFound
		}
		return Activation{}, err
	}
	return a, nil
}

func scanInstance(row pgx.Row) (Instance, error) {
	var (
		in     Instance
		action string
		config []byte
	)
	if err := row.Scan(&in.ID, &in.IntegrationKey, &in.Entity, &action, &in.ImplementationKey, &config, &in.CreatedAt, &in.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, err
	}
	in.FormAction = FormAction(action)
	if len(config) > 0 {
		if err := json.Unmarshal(config, &in.Configuration); err != nil {
			return Instance{}, fmt.Errorf("actions: decode instance %s: %w", in.ID, err)
		}
	}
	return in, nil
}

var _ RepositoryPort = (*Repository)(nil)
