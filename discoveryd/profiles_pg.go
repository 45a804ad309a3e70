package discoveryd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProfiles reads recipient profiles from Postgres.
type PostgresProfiles struct {
	pool *pgxpool.Pool
}

// NewPostgresPool connects a pgx pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// NewPostgresProfiles wraps an existing pool.
func NewPostgresProfiles(pool *pgxpool.Pool) *PostgresProfiles {
	return &PostgresProfiles{pool: pool}
}

// EnsureSchema creates the profiles table when absent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			user_id      TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			handle       TEXT NOT NULL DEFAULT '',
			avatar_url   TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

func (p *PostgresProfiles) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := p.pool.QueryRow(ctx,
		`SELECT user_id, display_name, handle, avatar_url FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &profile.DisplayName, &profile.Handle, &profile.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
