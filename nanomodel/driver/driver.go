// Package driver defines the storage contract the document model runs on.
//
// Queries use the document query language understood by internal/matching
// ({"field": value}, {"field": {"$in": [...]}} and so on). Updates use the
// operator form {"$set": {...}, "$unset": {...}, "$inc": {...},
// "$push": {...}, "$pull": {...}}.
//
// Drivers return plain documents: nested documents are map[string]any,
// arrays []any and identities types.ID.
package driver

import (
	"context"

	"github.com/arthur-debert/nanomodel/types"
)

// Driver opens collections.
type Driver interface {
	// Collection returns a handle to the named collection, creating it on
	// first write.
	Collection(ctx context.Context, name string, opts types.Options) (Collection, error)

	// Close releases the driver's resources. Collections obtained from it
	// must not be used afterwards.
	Close(ctx context.Context) error
}

// Collection is a handle to one named collection.
type Collection interface {
	Name() string

	// FindOne returns the first matching document, or nil when nothing
	// matches.
	FindOne(ctx context.Context, query types.Document, opts *FindOptions) (types.Document, error)

	// Find returns all matching documents.
	Find(ctx context.Context, query types.Document, opts *FindOptions) ([]types.Document, error)

	// Insert stores a new document, assigning _id when absent, and returns
	// its identity.
	Insert(ctx context.Context, doc types.Document, opts types.Options) (types.ID, error)

	// Update applies an operator update to matching documents and returns
	// how many were modified. Only the first match is updated unless
	// UpdateOptions.Multi is set.
	Update(ctx context.Context, query, update types.Document, opts *UpdateOptions) (int, error)

	// Save replaces the document with the same _id, inserting it when
	// absent.
	Save(ctx context.Context, doc types.Document, opts types.Options) error

	// Remove deletes matching documents and returns how many were removed.
	Remove(ctx context.Context, query types.Document, opts types.Options) (int, error)

	Count(ctx context.Context, query types.Document) (int, error)

	EnsureIndex(ctx context.Context, spec IndexSpec, opts *IndexOptions) error
}

// FindOptions shapes a read.
type FindOptions struct {
	// Fields limits the returned fields (a projection). _id is always
	// included.
	Fields []string
	Sort   []types.SortField
	Limit  int
	Skip   int
	// Extra carries backend-specific settings through unchanged.
	Extra types.Options
}

// UpdateOptions shapes an update.
type UpdateOptions struct {
	Multi  bool
	Upsert bool
	Extra  types.Options
}

// IndexKey is one field of an index.
type IndexKey struct {
	Field      string
	Descending bool
}

// IndexSpec lists the fields of an index in order.
type IndexSpec []IndexKey

// Asc builds an ascending index over fields.
func Asc(fields ...string) IndexSpec {
	spec := make(IndexSpec, len(fields))
	for i, f := range fields {
		spec[i] = IndexKey{Field: f}
	}
	return spec
}

// Fields returns the indexed field names.
func (s IndexSpec) Fields() []string {
	out := make([]string, len(s))
	for i, k := range s {
		out[i] = k.Field
	}
	return out
}

// Name derives the conventional index name, e.g. email_1_age_-1.
func (s IndexSpec) Name() string {
	name := ""
	for i, k := range s {
		if i > 0 {
			name += "_"
		}
		dir := "1"
		if k.Descending {
			dir = "-1"
		}
		name += k.Field + "_" + dir
	}
	return name
}

// IndexOptions are the options of EnsureIndex.
type IndexOptions struct {
	Unique bool
	Sparse bool
	Name   string
	Extra  types.Options
}
