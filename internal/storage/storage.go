package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "ynabot/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON snapshot at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the durable record of already-surfaced entry ids.
type State struct {
	KnownIDs []string  `json:"known_ids"`
	SavedAt  time.Time `json:"saved_at"`
}

// Store is the persistence API used by the monitor.
//
// Load returns an empty state when nothing was persisted yet or when the
// persisted document is unreadable. Save replaces the prior value whole.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
