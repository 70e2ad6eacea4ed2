package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPoolStore is the production postgres backend. Unlike the gorm
// backend it exposes real connection-pool stats and native advisory
// locks for multi-instance deployments.
type PgxPoolStore struct {
	pool *pgxpool.Pool
}

func OpenPgxPool(ctx context.Context, dsn string) (*PgxPoolStore, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/tariffd?sslmode=disable"
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PgxPoolStore{pool: pool}, nil
}

func (s *PgxPoolStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxPoolStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stat exposes pool statistics for the metrics collector.
func (s *PgxPoolStore) Stat() *pgxpool.Stat {
	return s.pool.Stat()
}

func (s *PgxPoolStore) GetSnapshot(ctx context.Context, key string) (*CachedSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payload, fetched_at FROM tariff_snapshots WHERE key=$1`, key)
	snap := CachedSnapshot{Key: key}
	if err := row.Scan(&snap.Payload, &snap.FetchedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *PgxPoolStore) PutSnapshot(ctx context.Context, snap CachedSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tariff_snapshots (key, payload, fetched_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET
			payload=EXCLUDED.payload,
			fetched_at=EXCLUDED.fetched_at
	`, snap.Key, snap.Payload, snap.FetchedAt)
	return err
}

func (s *PgxPoolStore) ClearSnapshot(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tariff_snapshots WHERE key=$1`, key)
	return err
}

func (s *PgxPoolStore) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *PgxPoolStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()
	`, key, value)
	return err
}

func (s *PgxPoolStore) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (s *PgxPoolStore) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok)
	return ok, err
}

func (s *PgxPoolStore) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}
