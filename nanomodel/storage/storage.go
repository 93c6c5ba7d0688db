// Package storage is the in-process storage engine. It keeps collections in
// memory, evaluates queries and updates with internal/docops and, when
// given a Backend, persists every write through it.
package storage

import (
	"time"

	"github.com/arthur-debert/nanomodel/types"
)

// FormatVersion is written into the metadata of persisted data.
const FormatVersion = "1.0"

// StoreData represents the complete data structure held by the engine.
type StoreData struct {
	Collections map[string]*CollectionData `json:"collections" bson:"collections"`
	Metadata    Metadata                   `json:"metadata" bson:"metadata"`
}

// CollectionData is one collection's documents and index definitions.
type CollectionData struct {
	Documents []types.Document `json:"documents" bson:"documents"`
	Indexes   []IndexData      `json:"indexes,omitempty" bson:"indexes,omitempty"`
}

// IndexData is a persisted index definition.
type IndexData struct {
	Name   string   `json:"name" bson:"name"`
	Fields []string `json:"fields" bson:"fields"`
	Unique bool     `json:"unique,omitempty" bson:"unique,omitempty"`
	Sparse bool     `json:"sparse,omitempty" bson:"sparse,omitempty"`
}

// Metadata contains storage metadata
type Metadata struct {
	Version   string    `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// NewStoreData returns empty data stamped with now.
func NewStoreData(now time.Time) *StoreData {
	return &StoreData{
		Collections: make(map[string]*CollectionData),
		Metadata: Metadata{
			Version:   FormatVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Backend persists the engine's data as a single unit.
type Backend interface {
	// Load reads the stored data. A missing store yields (nil, nil).
	Load() (*StoreData, error)

	// Save writes the entire data set.
	Save(data *StoreData) error

	// Close releases any resources held by the backend
	Close() error
}

// Syncer is implemented by backends other processes write to as well.
// Sync holds the backend's lock while fn runs, hands fn the data as
// currently stored (nil when nothing is stored yet) and a save that writes
// under that same lock.
type Syncer interface {
	Sync(fn func(latest *StoreData, save func(*StoreData) error) error) error
}

func (d *StoreData) collection(name string) *CollectionData {
	if d.Collections == nil {
		d.Collections = make(map[string]*CollectionData)
	}
	c, ok := d.Collections[name]
	if !ok {
		c = &CollectionData{Documents: []types.Document{}}
		d.Collections[name] = c
	}
	return c
}
