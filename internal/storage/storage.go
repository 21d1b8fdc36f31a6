// Package storage opens the reminder repository selected by configuration.
package storage

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/config"
	"github.com/notexe/reminders/internal/reminder"
)

// Store is a reminder repository that holds a database handle.
type Store interface {
	reminder.Repository
	io.Closer
}

// Open connects to SQLite or Postgres depending on cfg.Driver. The store
// logs through logger when it notices changes written by other processes.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := reminder.NewStore(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := reminder.NewPGStore(ctx, cfg.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}
