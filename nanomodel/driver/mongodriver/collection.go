package mongodriver

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/arthur-debert/nanomodel/internal/docops"
	"github.com/arthur-debert/nanomodel/internal/matching"
	"github.com/arthur-debert/nanomodel/internal/optbag"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

type collection struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func (c *collection) Name() string { return c.coll.Name() }

func (c *collection) FindOne(ctx context.Context, query types.Document, opts *driver.FindOptions) (types.Document, error) {
	if err := matching.Validate(query); err != nil {
		return nil, err
	}
	c.logger.Debug("mongo call", "op", "findOne")

	var doc bson.M
	err := c.coll.FindOne(ctx, filter(query), findOneOptions(opts)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "findOne on %s", c.Name())
	}
	return types.NormalizeDocument(doc), nil
}

func (c *collection) Find(ctx context.Context, query types.Document, opts *driver.FindOptions) ([]types.Document, error) {
	if err := matching.Validate(query); err != nil {
		return nil, err
	}
	c.logger.Debug("mongo call", "op", "find")

	cursor, err := c.coll.Find(ctx, filter(query), findOptions(opts))
	if err != nil {
		return nil, classify(err, "find on %s", c.Name())
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err, "reading find results on %s", c.Name())
	}
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = types.NormalizeDocument(doc)
	}
	return out, nil
}

func (c *collection) Insert(ctx context.Context, doc types.Document, opts types.Options) (types.ID, error) {
	stored, id, err := withID(doc)
	if err != nil {
		return types.NilID, err
	}
	c.logger.Debug("mongo call", "op", "insert")

	if _, err := c.coll.InsertOne(ctx, stored); err != nil {
		return types.NilID, classify(err, "insert into %s", c.Name())
	}
	return id, nil
}

func (c *collection) Update(ctx context.Context, query, update types.Document, opts *driver.UpdateOptions) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	operators, err := docops.IsOperatorUpdate(update)
	if err != nil {
		return 0, err
	}
	if opts == nil {
		opts = &driver.UpdateOptions{}
	}
	c.logger.Debug("mongo call", "op", "update", "multi", opts.Multi)

	var res *mongo.UpdateResult
	switch {
	case !operators:
		res, err = c.coll.ReplaceOne(ctx, filter(query), update, options.Replace().SetUpsert(opts.Upsert))
	case opts.Multi:
		res, err = c.coll.UpdateMany(ctx, filter(query), update, options.Update().SetUpsert(opts.Upsert))
	default:
		res, err = c.coll.UpdateOne(ctx, filter(query), update, options.Update().SetUpsert(opts.Upsert))
	}
	if err != nil {
		return 0, classify(err, "update on %s", c.Name())
	}
	return int(res.MatchedCount + res.UpsertedCount), nil
}

func (c *collection) Save(ctx context.Context, doc types.Document, opts types.Options) error {
	stored, id, err := withID(doc)
	if err != nil {
		return err
	}
	c.logger.Debug("mongo call", "op", "save")

	_, err = c.coll.ReplaceOne(ctx, bson.M{types.IDField: id}, stored, options.Replace().SetUpsert(true))
	return classify(err, "save into %s", c.Name())
}

// Remove deletes matching documents. The "single" option limits it to the
// first match.
func (c *collection) Remove(ctx context.Context, query types.Document, opts types.Options) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	c.logger.Debug("mongo call", "op", "remove")

	var (
		res *mongo.DeleteResult
		err error
	)
	if optbag.Bool(opts, "single", false) {
		res, err = c.coll.DeleteOne(ctx, filter(query))
	} else {
		res, err = c.coll.DeleteMany(ctx, filter(query))
	}
	if err != nil {
		return 0, classify(err, "remove from %s", c.Name())
	}
	return int(res.DeletedCount), nil
}

func (c *collection) Count(ctx context.Context, query types.Document) (int, error) {
	if err := matching.Validate(query); err != nil {
		return 0, err
	}
	c.logger.Debug("mongo call", "op", "count")

	n, err := c.coll.CountDocuments(ctx, filter(query))
	if err != nil {
		return 0, classify(err, "count on %s", c.Name())
	}
	return int(n), nil
}

func (c *collection) EnsureIndex(ctx context.Context, spec driver.IndexSpec, opts *driver.IndexOptions) error {
	if len(spec) == 0 {
		return types.BadQuery("index on %s has no fields", c.Name())
	}
	c.logger.Debug("mongo call", "op", "ensureIndex", "index", spec.Name())

	if _, err := c.coll.Indexes().CreateOne(ctx, indexModel(spec, opts)); err != nil {
		return classify(err, "creating index %s on %s", spec.Name(), c.Name())
	}
	return nil
}

// withID copies doc, assigning a fresh _id when it has none.
func withID(doc types.Document) (types.Document, types.ID, error) {
	stored := types.Clone(doc)
	if stored == nil {
		stored = types.Document{}
	}
	raw, ok := stored[types.IDField]
	if !ok || raw == nil {
		id := types.NewID()
		stored[types.IDField] = id
		return stored, id, nil
	}
	id, err := types.ParseID(raw)
	if err != nil {
		return nil, types.NilID, err
	}
	stored[types.IDField] = id
	return stored, id, nil
}
