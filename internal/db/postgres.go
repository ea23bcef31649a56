package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNilPool is returned by PostgresUserData without a pool.
var ErrNilPool = errors.New("postgres pool is nil")

// ConnectPostgres opens a pool for url and pings it.
func ConnectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New error: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping error: %w", err)
	}
	return pool, nil
}

const userDataSchema = `CREATE TABLE IF NOT EXISTS user_data (
	user_id TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresUserData stores one JSON payload per user in the user_data table.
type PostgresUserData struct {
	Pool *pgxpool.Pool
}

// EnsureSchema creates the user_data table when missing.
func (p *PostgresUserData) EnsureSchema(ctx context.Context) error {
	if p.Pool == nil {
		return ErrNilPool
	}
	if _, err := p.Pool.Exec(ctx, userDataSchema); err != nil {
		return fmt.Errorf("create user_data table: %w", err)
	}
	return nil
}

func (p *PostgresUserData) Fetch(ctx context.Context, userID string) ([]byte, bool, error) {
	if p.Pool == nil {
		return nil, false, ErrNilPool
	}
	var payload string
	err := p.Pool.QueryRow(ctx, `SELECT payload::text FROM user_data WHERE user_id = $1`, userID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select user data: %w", err)
	}
	return []byte(payload), true, nil
}

func (p *PostgresUserData) Upsert(ctx context.Context, userID string, payload []byte) error {
	if p.Pool == nil {
		return ErrNilPool
	}
	_, err := p.Pool.Exec(ctx, `INSERT INTO user_data (user_id, payload, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (user_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		userID, string(payload))
	if err != nil {
		return fmt.Errorf("upsert user data: %w", err)
	}
	return nil
}
