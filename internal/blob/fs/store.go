// Package fs stores tables as local files.
//
// Writes are serialized with an advisory lock on "<path>.lock" and land via
// temp file + rename, so readers never observe a half-written table and a
// failed write leaves the previous file untouched.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"sleepgen/internal/blob"
)

// LockRetry is how often a blocked Put re-tries the file lock.
const LockRetry = 50 * time.Millisecond

func init() {
	blob.Register("file", func(ctx context.Context, loc blob.Location) (blob.Store, error) {
		return New(), nil
	})
}

// Store is the filesystem backend. Keys are file paths.
type Store struct {
	// newLock is a seam for tests; production uses flock.New.
	newLock func(path string) locker
}

type locker interface {
	TryLockContext(ctx context.Context, retryDelay time.Duration) (bool, error)
	Unlock() error
}

// New returns a filesystem store.
func New() *Store {
	return &Store{
		newLock: func(path string) locker { return flock.New(path) },
	}
}

// Get opens the file at key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Put atomically replaces the file at key with data.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	dir := filepath.Dir(key)

	lk := s.newLock(key + ".lock")
	ok, err := lk.TryLockContext(ctx, LockRetry)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", key)
	}
	defer func() { _ = lk.Unlock() }()

	mode := fs.FileMode(0o644)
	if st, err := os.Stat(key); err == nil {
		mode = st.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(key)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, key); err != nil {
		return fmt.Errorf("rename into %s: %w", key, err)
	}
	committed = true
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

var _ blob.Store = (*Store)(nil)
