package token

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const badgerTokenKey = "mapkit/token"

// BadgerCache implements Cache on a badger database shared with the host
// application.
type BadgerCache struct {
	db     *badger.DB
	sealer *Sealer
}

// NewBadgerCache creates a cache on an open database. The caller owns db.
func NewBadgerCache(db *badger.DB, sealer *Sealer) *BadgerCache {
	return &BadgerCache{db: db, sealer: sealer}
}

// OpenBadger opens a badger database at path, or in memory when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// Load reads and decrypts the cached envelope.
func (c *BadgerCache) Load(ctx context.Context) (Entry, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerTokenKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read token: %w", err)
	}
	return c.sealer.Open(data)
}

// Save seals and stores the entry.
func (c *BadgerCache) Save(ctx context.Context, e Entry) error {
	data, err := c.sealer.Seal(e)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerTokenKey), data)
	})
}

// Clear deletes the cached envelope.
func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerTokenKey))
	})
}

var _ Cache = (*BadgerCache)(nil)
