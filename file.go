package luxsession

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionFileExt   = ".bin"
	probeFileName    = ".test"
	sessionDirSuffix = "lux/sessions"
)

// FileConfig holds configuration for the file store.
type FileConfig struct {
	// Dir is the directory idle sessions are swapped to. When empty, the
	// directory next to the executable is tried first, then the OS temp directory.
	Dir             string
	MaxSessionBytes int
}

// NewFileStore creates a memory store that swaps idle sessions to files.
// It fails when no candidate directory is writable.
func NewFileStore(cfg FileConfig, opts ...Option) (*MemoryStore, error) {
	swapper, err := newFileSwapper(cfg)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(append(opts, WithSwapper(swapper))...), nil
}

type fileSwapper struct {
	dir             string
	maxSessionBytes int
}

func newFileSwapper(cfg FileConfig) (*fileSwapper, error) {
	candidates := []string{cfg.Dir}
	if cfg.Dir == "" {
		candidates = defaultSessionDirs()
	}

	dir, err := resolveSessionDir(candidates)
	if err != nil {
		return nil, err
	}
	return &fileSwapper{dir: dir, maxSessionBytes: cfg.MaxSessionBytes}, nil
}

func defaultSessionDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), filepath.FromSlash(sessionDirSuffix)))
	}
	return append(dirs, filepath.Join(os.TempDir(), filepath.FromSlash(sessionDirSuffix)))
}

// resolveSessionDir returns the first candidate that passes a
// create/write/delete probe.
func resolveSessionDir(candidates []string) (string, error) {
	for _, dir := range candidates {
		if isWritableDir(dir) {
			return filepath.Abs(dir)
		}
	}
	return "", fmt.Errorf("%w: tried %s; check the permissions or free disk space",
		ErrNoWritableDirectory, strings.Join(candidates, ", "))
}

func isWritableDir(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false
	}

	probe := filepath.Join(dir, probeFileName)
	_ = os.Remove(probe)
	if err := os.WriteFile(probe, []byte("available?"), 0o600); err != nil {
		return false
	}
	return os.Remove(probe) == nil
}

func (f *fileSwapper) path(id uuid.UUID) string {
	return filepath.Join(f.dir, id.String()+sessionFileExt)
}

// Store replaces {dir}/{id}.bin with the session blob and stamps the file
// with the session's last access time.
func (f *fileSwapper) Store(ctx context.Context, id uuid.UUID, s *Session) error {
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := encodeSession(buf, s, f.maxSessionBytes); err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	path := f.path(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove previous session file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	_, werr := file.Write(buf.Bytes())
	cerr := file.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write session file: %w", err)
	}

	lastAccess := s.LastAccess()
	if err := os.Chtimes(path, lastAccess, lastAccess); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to stamp session file: %w", err)
	}
	return nil
}

// Restore reads and deletes {dir}/{id}.bin. Corrupt files are deleted too.
func (f *fileSwapper) Restore(ctx context.Context, id uuid.UUID) (*Session, error) {
	path := f.path(id)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}
	defer clear(data)

	s := newKeyedSession(id, info.ModTime())
	err = decodeSession(data, s)
	_ = os.Remove(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Purge removes session files last written before the cutoff.
func (f *fileSwapper) Purge(ctx context.Context, before time.Time) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("failed to list session directory: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != sessionFileExt {
			continue
		}
		if _, err := uuid.Parse(strings.TrimSuffix(name, sessionFileExt)); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(before) {
			if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op for the file swapper.
func (f *fileSwapper) Close() error {
	return nil
}
