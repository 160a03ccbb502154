package luxsession

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds configuration for the SQLite swap store.
type SQLiteConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxSessionBytes int
}

// NewSQLiteStore creates a memory store that swaps idle sessions to SQLite.
func NewSQLiteStore(dsn string, opts ...Option) (*MemoryStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN:          dsn,
		MaxOpenConns: 16, // Allow concurrent readers (writers are serialized by mutex)
		MaxIdleConns: 16,
	}, opts...)
}

// NewSQLiteStoreWithConfig creates a SQLite swap store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig, opts ...Option) (*MemoryStore, error) {
	// PRAGMAs go into the DSN so they apply to every pooled connection.
	cfg.DSN = withPragma(cfg.DSN, "synchronous", "synchronous=NORMAL")
	cfg.DSN = withPragma(cfg.DSN, "busy_timeout", "busy_timeout=5000")

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// WAL is persistent for the database file, so executing it once is sufficient.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS lux_sessions (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		last_access INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lux_sessions_last_access ON lux_sessions(last_access);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	swapper, err := newSQLSwapper(db, sqlQueries{
		store: `
			INSERT INTO lux_sessions (id, data, last_access)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				data = excluded.data,
				last_access = excluded.last_access
		`,
		load:   "SELECT data, last_access FROM lux_sessions WHERE id = ?",
		delete: "DELETE FROM lux_sessions WHERE id = ?",
		purge:  "DELETE FROM lux_sessions WHERE last_access < ?",
	}, &sync.Mutex{}, cfg.MaxSessionBytes) // Serializes writes to avoid SQLITE_BUSY
	if err != nil {
		return nil, err
	}

	return NewMemoryStore(append(opts, WithSwapper(swapper))...), nil
}

func withPragma(dsn, name, pragma string) string {
	if strings.Contains(dsn, name) {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=%s", dsn, separator, pragma)
}
