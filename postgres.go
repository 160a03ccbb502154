package luxsession

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgreSQLConfig holds configuration for the PostgreSQL swap store.
type PostgreSQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MaxSessionBytes int
}

// NewPostgreSQLStore creates a memory store that swaps idle sessions to
// PostgreSQL, with default pool settings.
func NewPostgreSQLStore(dsn string, opts ...Option) (*MemoryStore, error) {
	return NewPostgreSQLStoreWithConfig(PostgreSQLConfig{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}, opts...)
}

// NewPostgreSQLStoreWithConfig creates a PostgreSQL swap store with custom configuration.
func NewPostgreSQLStoreWithConfig(cfg PostgreSQLConfig, opts ...Option) (*MemoryStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
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
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgresql database: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS lux_sessions (
		id TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		last_access BIGINT NOT NULL
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
			VALUES ($1, $2, $3)
			ON CONFLICT(id) DO UPDATE SET
				data = EXCLUDED.data,
				last_access = EXCLUDED.last_access
		`,
		load:   "SELECT data, last_access FROM lux_sessions WHERE id = $1",
		delete: "DELETE FROM lux_sessions WHERE id = $1",
		purge:  "DELETE FROM lux_sessions WHERE last_access < $1",
	}, nil, cfg.MaxSessionBytes)
	if err != nil {
		return nil, err
	}

	return NewMemoryStore(append(opts, WithSwapper(swapper))...), nil
}
