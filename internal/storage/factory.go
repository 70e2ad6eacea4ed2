package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/bher20/tariffd/internal/migrate"
)

// Config controls how the cache store is opened.
type Config struct {
	Driver string
	DSN    string
}

// Open constructs a Store based on the given configuration. The gorm
// drivers self-migrate; the pgx pool backend runs the goose migrations
// so its schema stays under version control.
func Open(ctx context.Context, cfg Config) (Store, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Printf("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Printf("storage: using gorm driver=%s", drv)
		st, err := NewGormStore(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return st, nil

	case "postgrespool":
		log.Printf("storage: using pgx pool backend")
		if err := migrate.Up(ctx, drv, cfg.DSN); err != nil {
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return OpenPgxPool(ctx, cfg.DSN)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
