package nanomodel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmgilman/go/errors"

	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// Pool owns a driver and hands its collections out to models. Collections
// are opened on first use and kept until Close.
type Pool struct {
	driver driver.Driver
	config Config
	logger *slog.Logger

	// newBackOff builds the retry policy for opening a collection
	newBackOff func() backoff.BackOff

	mu          sync.Mutex
	collections map[string]driver.Collection
	closed      bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(p *Pool) {
		p.config = cfg
	}
}

// WithLogger sets the logger shared by the pool and its models.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBackOff replaces the exponential retry policy used when the driver
// reports a retryable failure opening a collection.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(p *Pool) {
		if fn != nil {
			p.newBackOff = fn
		}
	}
}

// NewPool wraps d.
func NewPool(d driver.Driver, opts ...Option) *Pool {
	p := &Pool{
		driver:      d,
		config:      DefaultConfig(),
		logger:      slog.Default(),
		collections: make(map[string]driver.Collection),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newBackOff == nil {
		timeout := p.config.ResolveTimeout
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxElapsedTime = timeout
			return b
		}
	}
	return p
}

func (p *Pool) Config() Config { return p.config }

func (p *Pool) Logger() *slog.Logger { return p.logger }

// Driver returns the wrapped driver.
func (p *Pool) Driver() driver.Driver { return p.driver }

// Collection returns the named collection, opening it if needed. Failures
// classified as retryable are retried with backoff until the policy or ctx
// gives up; anything else is returned at once.
func (p *Pool) Collection(ctx context.Context, name string) (driver.Collection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, types.Closed("pool")
	}
	if c, ok := p.collections[name]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	open := func() (driver.Collection, error) {
		c, err := p.driver.Collection(ctx, name, nil)
		if err != nil && !errors.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return c, err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("retrying collection open", "collection", name, "wait", wait, "error", err)
	}
	c, err := backoff.RetryNotifyWithData(open, backoff.WithContext(p.newBackOff(), ctx), notify)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, types.Closed("pool")
	}
	// A concurrent caller may have won; keep the first handle.
	if existing, ok := p.collections[name]; ok {
		return existing, nil
	}
	p.collections[name] = c
	p.logger.Debug("opened collection", "collection", name)
	return c, nil
}

// Close closes the driver. Later calls are no-ops.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.collections = nil
	p.mu.Unlock()
	return p.driver.Close(ctx)
}
