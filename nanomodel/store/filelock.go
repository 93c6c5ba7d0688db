package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Locker guards the data file for the duration of one load or save.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context) error
	Unlock() error
}

// LockFactory returns the Locker for a lock file path.
type LockFactory interface {
	New(path string) Locker
}

// OSLocks takes advisory flock(2) locks, so separate processes opening the
// same data file exclude each other.
type OSLocks struct {
	// RetryInterval is how often a held lock is polled. Zero means 50ms.
	RetryInterval time.Duration
}

func (f OSLocks) New(path string) Locker {
	retry := f.RetryInterval
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &osLock{fl: flock.New(path), retry: retry}
}

type osLock struct {
	fl    *flock.Flock
	retry time.Duration
}

func (l *osLock) Lock(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, l.retry)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("failed to lock %s", l.fl.Path())
	}
	return nil
}

func (l *osLock) Unlock() error { return l.fl.Unlock() }

// LocalLocks hands out in-process locks keyed by path. It pairs with
// in-memory filesystems, where there is no file to flock and no other
// process to exclude. Stores sharing one LocalLocks exclude each other.
type LocalLocks struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

func NewLocalLocks() *LocalLocks {
	return &LocalLocks{locks: make(map[string]*localLock)}
}

func (f *LocalLocks) New(path string) Locker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.locks[path]; ok {
		return l
	}
	l := &localLock{sem: make(chan struct{}, 1)}
	f.locks[path] = l
	return l
}

type localLock struct {
	sem chan struct{}
}

func (l *localLock) Lock(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *localLock) Unlock() error {
	select {
	case <-l.sem:
	default:
	}
	return nil
}
