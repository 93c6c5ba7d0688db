package mongodriver

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/arthur-debert/nanomodel/internal/optbag"
	"github.com/arthur-debert/nanomodel/nanomodel/driver"
	"github.com/arthur-debert/nanomodel/types"
)

// Extra option names understood on reads.
const (
	optMaxTime = "maxTime"
	optComment = "comment"
	optHint    = "hint"
)

func filter(query types.Document) bson.M {
	if query == nil {
		return bson.M{}
	}
	return bson.M(query)
}

// sortDocument keeps the field order, which decides precedence.
func sortDocument(fields []types.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := make(bson.D, len(fields))
	for i, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		out[i] = bson.E{Key: f.Field, Value: dir}
	}
	return out
}

func projection(fields []string) bson.D {
	if len(fields) == 0 {
		return nil
	}
	out := make(bson.D, len(fields))
	for i, f := range fields {
		out[i] = bson.E{Key: f, Value: 1}
	}
	return out
}

func findOptions(opts *driver.FindOptions) *options.FindOptions {
	out := options.Find()
	if opts == nil {
		return out
	}
	if p := projection(opts.Fields); p != nil {
		out.SetProjection(p)
	}
	if s := sortDocument(opts.Sort); s != nil {
		out.SetSort(s)
	}
	if opts.Limit > 0 {
		out.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		out.SetSkip(int64(opts.Skip))
	}
	if optbag.Has(opts.Extra, optMaxTime) {
		out.SetMaxTime(optbag.Duration(opts.Extra, optMaxTime, 0))
	}
	if c := optbag.String(opts.Extra, optComment, ""); c != "" {
		out.SetComment(c)
	}
	if h := optbag.String(opts.Extra, optHint, ""); h != "" {
		out.SetHint(h)
	}
	return out
}

func findOneOptions(opts *driver.FindOptions) *options.FindOneOptions {
	out := options.FindOne()
	if opts == nil {
		return out
	}
	if p := projection(opts.Fields); p != nil {
		out.SetProjection(p)
	}
	if s := sortDocument(opts.Sort); s != nil {
		out.SetSort(s)
	}
	if opts.Skip > 0 {
		out.SetSkip(int64(opts.Skip))
	}
	if optbag.Has(opts.Extra, optMaxTime) {
		out.SetMaxTime(optbag.Duration(opts.Extra, optMaxTime, 0))
	}
	if c := optbag.String(opts.Extra, optComment, ""); c != "" {
		out.SetComment(c)
	}
	if h := optbag.String(opts.Extra, optHint, ""); h != "" {
		out.SetHint(h)
	}
	return out
}

func indexModel(spec driver.IndexSpec, opts *driver.IndexOptions) mongo.IndexModel {
	if opts == nil {
		opts = &driver.IndexOptions{}
	}
	keys := make(bson.D, len(spec))
	for i, k := range spec {
		dir := 1
		if k.Descending {
			dir = -1
		}
		keys[i] = bson.E{Key: k.Field, Value: dir}
	}
	name := opts.Name
	if name == "" {
		name = spec.Name()
	}
	idx := options.Index().SetName(name)
	if opts.Unique {
		idx.SetUnique(true)
	}
	if opts.Sparse {
		idx.SetSparse(true)
	}
	return mongo.IndexModel{Keys: keys, Options: idx}
}
