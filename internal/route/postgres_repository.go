package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. Items are
// stored as a JSONB array so the tagged union round-trips without a join.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL route repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists a new route.
func (r *PostgresRepository) Create(ctx context.Context, route *Route) error {
	items, err := json.Marshal(route.Items)
	if err != nil {
		return fmt.Errorf("encode route items: %w", err)
	}

	query := `
		INSERT INTO routes (
			id, name, items, total_distance, start_heading,
			anchor_key, snapshot_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		route.ID,
		route.Name,
		items,
		route.TotalDistance,
		route.StartHeading,
		route.AnchorKey,
		route.SnapshotKey,
		route.CreatedAt,
	)
	return err
}

// Get retrieves a route by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Route, error) {
	query := `
		SELECT id, name, items, total_distance, start_heading,
			anchor_key, snapshot_key, created_at
		FROM routes
		WHERE id = $1
	`

	var route Route
	var items []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&route.ID,
		&route.Name,
		&items,
		&route.TotalDistance,
		&route.StartHeading,
		&route.AnchorKey,
		&route.SnapshotKey,
		&route.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &route.Items); err != nil {
		return nil, fmt.Errorf("decode route items: %w", err)
	}

	return &route, nil
}

// List retrieves summaries of all routes, newest first. Move and event
// counts are computed from the JSONB items in the database so listing does
// not decode full item payloads in Go.
func (r *PostgresRepository) List(ctx context.Context) ([]Summary, error) {
	query := `
		SELECT
			id, name, total_distance, created_at,
			(SELECT count(*) FROM jsonb_array_elements(items) e WHERE e->>'type' = 'move'),
			(SELECT count(*) FROM jsonb_array_elements(items) e WHERE e->>'type' = 'event')
		FROM routes
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.TotalDistance,
			&s.CreatedAt,
			&s.MoveCount,
			&s.EventCount,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// Delete removes a route by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM routes WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}

	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
