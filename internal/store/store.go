// Package store is the SQLite catalog layer. All bulk catalog mutation runs
// inside a single transaction per source refresh (see DoTx); the reconciler
// upserts keep re-ingestion idempotent under the channel identity key
// (name, source, url, series, season).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store provides SQLite persistence for the channel catalog.
type Store struct {
	db *sql.DB
}

// Open initializes the catalog database at dbPath and runs migrations.
// WAL + busy_timeout keep the read path responsive while a refresh
// transaction is open.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		dbPath,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		source_type INTEGER NOT NULL,
		url TEXT,
		username TEXT,
		password TEXT,
		mac TEXT,
		user_agent TEXT,
		max_streams INTEGER NOT NULL DEFAULT 1,
		use_tvg_id INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		image TEXT,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		media_type INTEGER,
		UNIQUE (name, source_id)
	);

	CREATE TABLE IF NOT EXISTS seasons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		image TEXT,
		series_id INTEGER NOT NULL,
		season_number INTEGER NOT NULL,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		UNIQUE (series_id, season_number, source_id)
	);

	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		group_id INTEGER REFERENCES groups(id) ON DELETE SET NULL,
		image TEXT,
		url TEXT,
		media_type INTEGER NOT NULL,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		stream_id INTEGER,
		series_id INTEGER,
		season_id INTEGER REFERENCES seasons(id) ON DELETE CASCADE,
		episode_num INTEGER,
		favorite INTEGER NOT NULL DEFAULT 0,
		last_watched INTEGER,
		hidden INTEGER NOT NULL DEFAULT 0,
		tv_archive INTEGER
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_identity ON channels
		(name, source_id, coalesce(url, ''), coalesce(series_id, -1), coalesce(season_id, -1));
	CREATE INDEX IF NOT EXISTS idx_channels_source ON channels (source_id);
	CREATE INDEX IF NOT EXISTS idx_channels_series ON channels (series_id, source_id);
	CREATE INDEX IF NOT EXISTS idx_channels_name ON channels (name);

	CREATE TABLE IF NOT EXISTS channel_http_headers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		referrer TEXT,
		user_agent TEXT,
		http_origin TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_headers_channel ON channel_http_headers (channel_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Tx wraps one catalog transaction. All reconciler operations hang off it so
// no mutation can escape the refresh transaction.
type Tx struct {
	tx *sql.Tx
}

// DoTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic. A failed refresh therefore leaves the prior catalog intact.
func (s *Store) DoTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	done = true
	return nil
}
