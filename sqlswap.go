package luxsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sqlSwapper keeps swapped sessions in a lux_sessions table. Last access
// times are stored as Unix nanoseconds so both drivers compare them the same way.
type sqlSwapper struct {
	db              *sql.DB
	writeMu         sync.Locker
	storeStmt       *sql.Stmt
	loadStmt        *sql.Stmt
	deleteStmt      *sql.Stmt
	purgeStmt       *sql.Stmt
	maxSessionBytes int
}

type sqlQueries struct {
	store, load, delete, purge string
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

func newSQLSwapper(db *sql.DB, q sqlQueries, writeMu sync.Locker, maxSessionBytes int) (*sqlSwapper, error) {
	if writeMu == nil {
		writeMu = noopLocker{}
	}
	s := &sqlSwapper{db: db, writeMu: writeMu, maxSessionBytes: maxSessionBytes}

	var err error
	if s.storeStmt, err = db.Prepare(q.store); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare store statement: %w", err)
	}
	if s.loadStmt, err = db.Prepare(q.load); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}
	if s.deleteStmt, err = db.Prepare(q.delete); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	if s.purgeStmt, err = db.Prepare(q.purge); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare purge statement: %w", err)
	}
	return s, nil
}

func (s *sqlSwapper) Store(ctx context.Context, id uuid.UUID, session *Session) error {
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := encodeSession(buf, session, s.maxSessionBytes); err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.storeStmt.ExecContext(ctx, id.String(), buf.Bytes(), session.LastAccess().UnixNano()); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *sqlSwapper) Restore(ctx context.Context, id uuid.UUID) (*Session, error) {
	var data []byte
	var lastAccess int64

	err := s.loadStmt.QueryRowContext(ctx, id.String()).Scan(&data, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer clear(data)

	session := newKeyedSession(id, time.Unix(0, lastAccess))
	decodeErr := decodeSession(data, session)

	s.writeMu.Lock()
	_, err = s.deleteStmt.ExecContext(ctx, id.String())
	s.writeMu.Unlock()

	if decodeErr != nil {
		return nil, decodeErr
	}
	if err != nil {
		// Keeping a restored copy would resurrect stale data on the next restore.
		return nil, fmt.Errorf("failed to delete restored session: %w", err)
	}
	return session, nil
}

func (s *sqlSwapper) Purge(ctx context.Context, before time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.purgeStmt.ExecContext(ctx, before.UnixNano()); err != nil {
		return fmt.Errorf("failed to purge swapped sessions: %w", err)
	}
	return nil
}

func (s *sqlSwapper) Close() error {
	for _, stmt := range []*sql.Stmt{s.storeStmt, s.loadStmt, s.deleteStmt, s.purgeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
