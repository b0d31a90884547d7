package journal

import (
	"context"
	"fmt"

	"linkrelay/internal/config"
)

// Store persists whole journal snapshots.
//
// Load and Save each run under one exclusive guard, but a Load followed by a
// Save is not atomic: callers reload immediately before every mutation.
type Store interface {
	Load(ctx context.Context) (*Journal, error)
	Save(ctx context.Context, j *Journal) error
	Close() error
}

// Open returns the store selected by journal.backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("journal: config is required")
	}
	switch cfg.Journal.Backend {
	case config.JournalBackendJSON, "":
		store := NewFileStore(cfg.Paths.JournalPath)
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.JournalBackendSQLite:
		return OpenSQLite(ctx, cfg.Journal.SQLitePath)
	case config.JournalBackendPostgres:
		return OpenPostgres(ctx, cfg.Journal.PostgresDSN)
	default:
		return nil, fmt.Errorf("journal: unsupported backend %q", cfg.Journal.Backend)
	}
}

// Describe returns a short human-readable location for a store.
func Describe(store Store) string {
	switch s := store.(type) {
	case *FileStore:
		return "json:" + s.Path()
	case *SQLiteStore:
		return "sqlite:" + s.Path()
	case *PostgresStore:
		return "postgres"
	default:
		return "unknown"
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
