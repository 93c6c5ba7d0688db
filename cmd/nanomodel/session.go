package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/nanomodel/driver/mongodriver"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/nanomodel/store"
	"github.com/arthur-debert/nanomodel/types"
)

// loadSchema compiles the --schema file.
func (cli *CLI) loadSchema() (*schema.Schema, error) {
	path := cli.viperInst.GetString("schema")
	if path == "" {
		return nil, fmt.Errorf("a schema file is required (--schema or NANOMODEL_SCHEMA)")
	}
	s, err := schema.LoadFile(path, schema.WithLogger(cli.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}
	return s, nil
}

// openModel opens the configured driver and returns the model for the
// schema. The pool is closed when the command finishes.
func (cli *CLI) openModel(ctx context.Context) (*nanomodel.Model, error) {
	s, err := cli.loadSchema()
	if err != nil {
		return nil, err
	}
	d, err := cli.openDriver(ctx)
	if err != nil {
		return nil, err
	}

	pool := nanomodel.NewPool(d, nanomodel.WithConfig(cli.config), nanomodel.WithLogger(cli.logger))
	cli.closers = append(cli.closers, closerFunc(func() error { return pool.Close(context.Background()) }))

	name := cli.viperInst.GetString("collection")
	if name == "" {
		name = s.Name()
	}
	return nanomodel.NewModel(pool, name, s)
}

func (cli *CLI) openDriver(ctx context.Context) (driver.Driver, error) {
	if uri := cli.viperInst.GetString("mongo_uri"); uri != "" {
		db := cli.viperInst.GetString("mongo_db")
		cli.logger.Debug("using mongo driver", "database", db)
		return mongodriver.Connect(ctx, uri, db, mongodriver.WithLogger(cli.logger))
	}
	cli.logger.Debug("using file driver", "path", cli.config.DataPath)
	return store.Open(cli.config.DataPath, store.WithLogger(cli.logger))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// readDocument parses a JSON document from a file, or from stdin for "-".
// Extended JSON ({"$oid": ...}, {"$date": ...}) is understood.
func readDocument(path string, stdin io.Reader) (types.Document, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return parseDocument(raw)
}

// parseDocument parses an (extended) JSON object. Empty input is an empty
// document.
func parseDocument(raw []byte) (types.Document, error) {
	if len(raw) == 0 {
		return types.Document{}, nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return types.NormalizeDocument(doc), nil
}
