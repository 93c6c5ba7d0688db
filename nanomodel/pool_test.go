package nanomodel_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmgilman/go/errors"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/storage"
	"github.com/arthur-debert/nanomodel/types"
)

// flakyDriver fails the first failures collection opens with err.
type flakyDriver struct {
	driver.Driver
	failures int
	err      error
	opens    int
}

func (d *flakyDriver) Collection(ctx context.Context, name string, opts types.Options) (driver.Collection, error) {
	d.opens++
	if d.opens <= d.failures {
		return nil, d.err
	}
	return d.Driver.Collection(ctx, name, opts)
}

func noWait() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5) }

func TestPoolRetriesRetryableErrors(t *testing.T) {
	ctx := context.Background()
	d := &flakyDriver{
		Driver:   storage.NewMemory(),
		failures: 2,
		err:      errors.New(errors.CodeNetwork, "connection refused"),
	}
	pool := nanomodel.NewPool(d, nanomodel.WithBackOff(noWait))

	c, err := pool.Collection(ctx, "users")
	if err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if d.opens != 3 {
		t.Errorf("expected 3 opens, got %d", d.opens)
	}
	again, _ := pool.Collection(ctx, "users")
	if again != c || d.opens != 3 {
		t.Error("expected the collection to be reused")
	}
}

func TestPoolDoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()
	boom := stderrors.New("bad credentials")
	d := &flakyDriver{Driver: storage.NewMemory(), failures: 10, err: boom}
	pool := nanomodel.NewPool(d, nanomodel.WithBackOff(noWait))

	_, err := pool.Collection(ctx, "users")
	if !stderrors.Is(err, boom) {
		t.Fatalf("expected the driver error unchanged, got %v", err)
	}
	if d.opens != 1 {
		t.Errorf("expected a single attempt, got %d", d.opens)
	}
}

func TestPoolClose(t *testing.T) {
	ctx := context.Background()
	engine := storage.NewMemory()
	pool := nanomodel.NewPool(engine)
	if _, err := pool.Collection(ctx, "users"); err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := pool.Close(ctx); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if _, err := pool.Collection(ctx, "users"); !types.IsClosed(err) {
		t.Errorf("expected a closed error, got %v", err)
	}
	if _, err := engine.Collection(ctx, "users", nil); !types.IsClosed(err) {
		t.Errorf("expected the driver to be closed too, got %v", err)
	}
}

func TestConfig(t *testing.T) {
	if err := nanomodel.ValidateConfig(nanomodel.DefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	cfg := nanomodel.DefaultConfig()
	cfg.LogLevel = "loud"
	if err := nanomodel.ValidateConfig(cfg); err == nil {
		t.Error("expected an unknown log level to be rejected")
	}
	cfg = nanomodel.DefaultConfig()
	cfg.CacheSize = -1
	if err := nanomodel.ValidateConfig(cfg); err == nil {
		t.Error("expected a negative cache size to be rejected")
	}
}
