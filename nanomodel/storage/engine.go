package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arthur-debert/nanomodel/internal/validation"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// Engine implements driver.Driver over in-memory collections.
type Engine struct {
	lockManager *LockManager
	data        *StoreData
	backend     Backend
	logger      *slog.Logger
	closed      bool

	// timeFunc is used to stamp metadata, defaults to time.Now
	timeFunc func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackend persists every write through b. Data is loaded from b when
// the engine is created, and again before each write when b is a Syncer.
func WithBackend(b Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithLogger sets the logger for per-operation debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(e *Engine) {
		e.timeFunc = fn
	}
}

// New creates an engine, loading existing data from the backend if one is
// configured.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		lockManager: NewLockManager(),
		logger:      slog.Default(),
		timeFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.backend != nil {
		data, err := e.backend.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load data: %w", err)
		}
		e.data = data
	}
	if e.data == nil {
		e.data = NewStoreData(e.timeFunc())
	}
	return e, nil
}

// NewMemory creates an engine without persistence.
func NewMemory(opts ...Option) *Engine {
	e, err := New(opts...)
	if err != nil {
		// Only a backend can fail to load.
		panic(err)
	}
	return e
}

// Collection implements driver.Driver.
func (e *Engine) Collection(ctx context.Context, name string, opts types.Options) (driver.Collection, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return nil, types.BadQuery("%v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	closed, _ := ExecuteWithResult(e.lockManager, ReadOperation, func() (bool, error) {
		return e.closed, nil
	})
	if closed {
		return nil, types.Closed("storage engine")
	}
	return &collection{engine: e, name: name}, nil
}

// Close implements driver.Driver. The backend, if any, is closed too.
func (e *Engine) Close(ctx context.Context) error {
	return e.lockManager.Execute(WriteOperation, func() error {
		if e.closed {
			return nil
		}
		e.closed = true
		if e.backend != nil {
			return e.backend.Close()
		}
		return nil
	})
}

// CollectionNames lists the collections holding data or indexes.
func (e *Engine) CollectionNames() []string {
	names, _ := ExecuteWithResult(e.lockManager, ReadOperation, func() ([]string, error) {
		out := make([]string, 0, len(e.data.Collections))
		for name := range e.data.Collections {
			out = append(out, name)
		}
		return out, nil
	})
	return names
}

// read runs fn with shared access to a collection's data. A collection
// that was never written reads as empty.
func (e *Engine) read(ctx context.Context, name, op string, fn func(c *CollectionData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.lockManager.Execute(ReadOperation, func() error {
		if e.closed {
			return types.Closed("storage engine")
		}
		e.logger.Debug("storage read", "collection", name, "op", op)
		c, ok := e.data.Collections[name]
		if !ok {
			c = &CollectionData{}
		}
		return fn(c)
	})
}

// write runs fn with exclusive access and persists the result. A backend
// implementing Syncer is re-read first, so fn applies to the latest stored
// data. When fn or the save fails the collection is restored to its
// previous state.
func (e *Engine) write(ctx context.Context, name, op string, fn func(c *CollectionData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.lockManager.Execute(WriteOperation, func() error {
		if e.closed {
			return types.Closed("storage engine")
		}
		e.logger.Debug("storage write", "collection", name, "op", op)

		switch b := e.backend.(type) {
		case nil:
			return e.mutate(name, fn, nil)
		case Syncer:
			return b.Sync(func(latest *StoreData, save func(*StoreData) error) error {
				if latest != nil {
					e.data = latest
				}
				return e.mutate(name, fn, save)
			})
		default:
			return e.mutate(name, fn, b.Save)
		}
	})
}

// mutate applies fn to one collection and, when save is set, stamps and
// saves the data. Callers hold the write lock.
func (e *Engine) mutate(name string, fn func(c *CollectionData) error, save func(*StoreData) error) error {
	_, existed := e.data.Collections[name]
	c := e.data.collection(name)
	prevDocs := append([]types.Document(nil), c.Documents...)
	prevIndexes := append([]IndexData(nil), c.Indexes...)
	restore := func() {
		if !existed {
			delete(e.data.Collections, name)
			return
		}
		c.Documents = prevDocs
		c.Indexes = prevIndexes
	}

	if err := fn(c); err != nil {
		restore()
		return err
	}
	if save == nil {
		return nil
	}

	prevUpdated := e.data.Metadata.UpdatedAt
	e.data.Metadata.UpdatedAt = e.timeFunc()
	if err := save(e.data); err != nil {
		restore()
		e.data.Metadata.UpdatedAt = prevUpdated
		return err
	}
	return nil
}
