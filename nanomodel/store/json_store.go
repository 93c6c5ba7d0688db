// Package store is the JSON file driver: the storage engine persisted to a
// single MongoDB extended JSON file, guarded by a cross-process file lock
// and rewritten atomically on every write.
//
// Every write re-reads the file under the lock and applies the change to
// what it finds, so processes sharing a file do not lose each other's
// writes. Reads are served from memory and only see another process's
// writes after this process writes or reopens the file.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/nanomodel/nanomodel/storage"
	"github.com/arthur-debert/nanomodel/types"
)

// lockTimeout bounds the wait for the data file lock.
const lockTimeout = 3 * time.Second

// jsonFileStore implements storage.Backend on a JSON file.
type jsonFileStore struct {
	filePath    string
	fs          FileSystem
	locks  LockFactory
	locker Locker
	logger      *slog.Logger
	canonical   bool

	// timeFunc is used to get the current time, defaults to time.Now
	timeFunc func() time.Time
}

// Open returns a driver whose collections live in the file at filePath.
// The file is created on the first write.
func Open(filePath string, opts ...Option) (*storage.Engine, error) {
	backend := newJSONFileStore(filePath, opts...)
	return storage.New(
		storage.WithBackend(backend),
		storage.WithLogger(backend.logger),
		storage.WithTimeFunc(backend.timeFunc),
	)
}

func newJSONFileStore(filePath string, opts ...Option) *jsonFileStore {
	s := &jsonFileStore{
		filePath:  filePath,
		logger:    slog.Default(),
		canonical: true,
		timeFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Set defaults for dependencies not provided via options
	if s.fs == nil {
		s.fs = &OSFileSystem{}
	}
	if s.locks == nil {
		s.locks = OSLocks{}
	}
	s.locker = s.locks.New(filePath + ".lock")
	return s
}

// Load implements storage.Backend.
func (s *jsonFileStore) Load() (*storage.StoreData, error) {
	var data *storage.StoreData
	err := s.withLock(func() error {
		var err error
		data, err = s.load()
		return err
	})
	return data, err
}

// Save implements storage.Backend.
func (s *jsonFileStore) Save(data *storage.StoreData) error {
	return s.withLock(func() error {
		return s.save(data)
	})
}

// Sync implements storage.Syncer. fn sees the file as it is now and may
// save while the lock is held.
func (s *jsonFileStore) Sync(fn func(latest *storage.StoreData, save func(*storage.StoreData) error) error) error {
	return s.withLock(func() error {
		latest, err := s.load()
		if err != nil {
			return err
		}
		return fn(latest, s.save)
	})
}

// Close implements storage.Backend. The lock is only held during a load or
// save, so there is nothing to release.
func (s *jsonFileStore) Close() error {
	return nil
}

func (s *jsonFileStore) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	if err := s.locker.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.locker.Unlock() }()

	return fn()
}

// load reads the file. A missing or empty file yields (nil, nil).
func (s *jsonFileStore) load() (*storage.StoreData, error) {
	if _, err := s.fs.Stat(s.filePath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	raw, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	data, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("loaded data file", "path", s.filePath, "collections", len(data.Collections))
	return data, nil
}

// save writes the file atomically (write to temp file, then rename).
func (s *jsonFileStore) save(data *storage.StoreData) error {
	raw, err := Encode(data, s.canonical)
	if err != nil {
		return err
	}

	tmpFile := s.filePath + ".tmp"
	if err := s.fs.WriteFile(tmpFile, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tmpFile, s.filePath); err != nil {
		_ = s.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Encode renders data as indented extended JSON. Canonical output keeps
// every value's exact BSON type.
func Encode(data *storage.StoreData, canonical bool) ([]byte, error) {
	raw, err := bson.MarshalExtJSONIndent(data, canonical, false, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return raw, nil
}

// Decode parses extended JSON produced by Encode (in either mode) and
// converts stored documents to plain maps and slices.
func Decode(raw []byte) (*storage.StoreData, error) {
	var data storage.StoreData
	if err := bson.UnmarshalExtJSON(raw, false, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Collections == nil {
		data.Collections = make(map[string]*storage.CollectionData)
	}
	for name, c := range data.Collections {
		if c == nil {
			c = &storage.CollectionData{}
			data.Collections[name] = c
		}
		for i, doc := range c.Documents {
			c.Documents[i] = types.NormalizeDocument(doc)
		}
		if c.Documents == nil {
			c.Documents = []types.Document{}
		}
	}
	return &data, nil
}
