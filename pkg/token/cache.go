package token

import "context"

// Cache persists the last accepted token between runs.
type Cache interface {
	// Load returns the cached entry or ErrCacheMiss.
	Load(ctx context.Context) (Entry, error)

	// Save persists an entry, replacing any previous one.
	Save(ctx context.Context, e Entry) error

	// Clear removes the cached entry. Clearing an empty cache is not an error.
	Clear(ctx context.Context) error
}
