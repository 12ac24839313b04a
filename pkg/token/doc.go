// Package token resolves the map provider access token.
//
// Candidates come from a priority-ordered chain of sources:
//
//  1. an explicit override value
//  2. the persisted, encrypted cache
//  3. the backend token endpoint
//
// The first candidate that passes the syntactic [ValidateFormat] check and a
// live [Prober] request against the tile provider wins. Tokens obtained from
// the backend are written back to the cache. The accepted token is held in a
// memguard enclave ([Secret]) rather than as a plain string.
//
// # Cache
//
// Both cache implementations store the same sealed envelope: the token is
// encrypted with XChaCha20-Poly1305 under a key derived from a passphrase
// with argon2id. [FileCache] writes a JSON file atomically (temp file, then
// rename); [BadgerCache] stores the envelope under a single badger key.
//
// # Usage
//
//	cache := token.NewFileCache(dir, token.NewSealer(passphrase))
//	provider := token.NewProvider(token.ProviderConfig{
//	    Override:   os.Getenv("MAPKIT_TOKEN"),
//	    BackendURL: "https://api.example.com",
//	    ProbeURL:   token.DefaultProbeURL,
//	}, httpClient, cache, logger)
//	res, err := provider.Resolve(ctx)
package token
