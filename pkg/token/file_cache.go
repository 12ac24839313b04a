package token

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

const cacheFileName = "token.json"

// FileCache implements Cache using a sealed JSON file.
type FileCache struct {
	dir    string
	sealer *Sealer
}

// NewFileCache creates a FileCache in dir.
func NewFileCache(dir string, sealer *Sealer) *FileCache {
	return &FileCache{dir: dir, sealer: sealer}
}

// Load reads and decrypts the cache file.
func (c *FileCache) Load(ctx context.Context) (Entry, error) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrCacheMiss
		}
		return Entry{}, err
	}
	return c.sealer.Open(data)
}

// Save persists the entry atomically.
// Uses atomic write (write to temp file, then rename) to prevent corruption.
func (c *FileCache) Save(ctx context.Context, e Entry) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}

	data, err := c.sealer.Seal(e)
	if err != nil {
		return err
	}

	path := c.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Clear removes the cache file.
func (c *FileCache) Clear(ctx context.Context) error {
	err := os.Remove(c.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Path returns the full path to the cache file.
func (c *FileCache) Path() string {
	return filepath.Join(c.dir, cacheFileName)
}

var _ Cache = (*FileCache)(nil)
