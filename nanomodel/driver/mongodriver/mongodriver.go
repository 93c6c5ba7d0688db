// Package mongodriver runs the document model on a MongoDB database.
//
//	d, err := mongodriver.Connect(ctx, "mongodb://localhost:27017", "app")
//	pool := nanomodel.NewPool(d)
//
// Queries and updates are passed to the server as they are; they are checked
// locally first so a malformed query never reaches the network. Results are
// normalized to plain documents.
package mongodriver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmgilman/go/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/arthur-debert/nanomodel/internal/validation"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// Driver implements driver.Driver over one database.
type Driver struct {
	db     *mongo.Database
	owned  bool
	logger *slog.Logger

	mu       sync.Mutex
	verified bool
	closed   bool
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Connect dials uri and uses database. The returned driver owns the client
// and disconnects it on Close. The server is not contacted until the first
// collection is opened.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Driver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classify(err, "failed to connect to %s", uri)
	}
	d := New(client.Database(database), opts...)
	d.owned = true
	return d, nil
}

// New wraps an existing database handle. Close leaves its client connected.
func New(db *mongo.Database, opts ...Option) *Driver {
	d := &Driver{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Collection returns a handle to the named collection. The first call pings
// the server; a failed ping is a network error, which callers may retry.
func (d *Driver) Collection(ctx context.Context, name string, opts types.Options) (driver.Collection, error) {
	if err := validation.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if err := d.verify(ctx); err != nil {
		return nil, err
	}
	return &collection{
		coll:   d.db.Collection(name),
		logger: d.logger.With("collection", name),
	}, nil
}

func (d *Driver) verify(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return types.Closed("mongo driver")
	}
	if d.verified {
		return nil
	}
	if err := d.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrapf(err, errors.CodeNetwork, "failed to reach database %s", d.db.Name())
	}
	d.verified = true
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if !d.owned {
		return nil
	}
	if err := d.db.Client().Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

// classify gives driver errors a code. Duplicate keys match the in-memory
// driver; network and timeout failures are retryable.
func classify(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return errors.Wrapf(err, types.CodeDuplicateKey, format, args...)
	case mongo.IsTimeout(err):
		return errors.Wrapf(err, errors.CodeTimeout, format, args...)
	case mongo.IsNetworkError(err):
		return errors.Wrapf(err, errors.CodeNetwork, format, args...)
	default:
		return errors.Wrapf(err, errors.CodeDatabase, format, args...)
	}
}
