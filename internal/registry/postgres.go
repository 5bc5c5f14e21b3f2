package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry backs the allow-list with the firmware_allowlist table.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Lookup(ctx context.Context, firmwareChecksum string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM firmware_allowlist WHERE checksum = $1)`,
		normalize(firmwareChecksum),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup firmware checksum: %w", err)
	}
	return exists, nil
}

// Approve inserts a checksum into the allow-list. Re-approving an existing
// checksum is a no-op.
func (r *PostgresRegistry) Approve(ctx context.Context, firmwareChecksum string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO firmware_allowlist (checksum) VALUES ($1) ON CONFLICT (checksum) DO NOTHING`,
		normalize(firmwareChecksum),
	)
	if err != nil {
		return fmt.Errorf("approve firmware checksum: %w", err)
	}
	return nil
}
