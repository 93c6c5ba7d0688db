package store

import (
	"log/slog"
	"time"
)

// Option is a function that modifies the JSON file store configuration
type Option func(*jsonFileStore)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(s *jsonFileStore) {
		s.fs = fs
	}
}

// WithLocks sets where data file locks come from. The default is OSLocks.
func WithLocks(locks LockFactory) Option {
	return func(s *jsonFileStore) {
		s.locks = locks
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *jsonFileStore) {
		s.timeFunc = fn
	}
}

// WithLogger sets the logger used by the store and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *jsonFileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRelaxedJSON writes relaxed extended JSON: plain numbers instead of
// typed wrappers. Files are easier to read but integer widths are not
// preserved across a reload.
func WithRelaxedJSON() Option {
	return func(s *jsonFileStore) {
		s.canonical = false
	}
}
