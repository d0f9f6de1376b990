package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "ynabot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS known_ids (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM known_ids")
	if err != nil {
		s.log.Warn("state db unreadable; starting from empty state", logx.Err(err))
		return State{}, nil
	}
	defer rows.Close()

	var st State
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.log.Warn("state row unreadable; starting from empty state", logx.Err(err))
			return State{}, nil
		}
		st.KnownIDs = append(st.KnownIDs, id)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("state db unreadable; starting from empty state", logx.Err(err))
		return State{}, nil
	}

	var raw string
	err = s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'saved_at'").Scan(&raw)
	if err == nil {
		if at, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			st.SavedAt = at
		}
	}
	return st, nil
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM known_ids"); err != nil {
		return err
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO known_ids (id) VALUES (?)")
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, id := range st.KnownIDs {
		if _, err := ins.ExecContext(ctx, id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES ('saved_at', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		st.SavedAt.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
