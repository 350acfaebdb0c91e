package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDeviceRepository is a PostgreSQL implementation of DeviceRepository.
type PostgresDeviceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository.
func NewPostgresDeviceRepository(pool *pgxpool.Pool) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{pool: pool}
}

// Create stores a new device.
func (r *PostgresDeviceRepository) Create(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (id, name, platform, app_version, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID,
		device.Name,
		device.Platform,
		device.AppVersion,
		device.CreatedAt,
		device.LastSeenAt,
	)
	return err
}

// FindByID finds a device by its ID.
func (r *PostgresDeviceRepository) FindByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, name, platform, app_version, created_at, last_seen_at
		FROM devices
		WHERE id = $1
	`

	var device Device
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&device.ID,
		&device.Name,
		&device.Platform,
		&device.AppVersion,
		&device.CreatedAt,
		&device.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &device, nil
}

// TouchLastSeen updates a device's last-seen timestamp.
func (r *PostgresDeviceRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE devices
		SET last_seen_at = $2
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Ensure PostgresDeviceRepository implements the interface.
var _ DeviceRepository = (*PostgresDeviceRepository)(nil)
