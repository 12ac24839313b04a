package token

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const envelopeVersion = 1

var additionalData = []byte("mapkit-token-v1")

// ErrCacheMiss is returned by caches that hold no entry.
var ErrCacheMiss = errors.New("token: cache miss")

// ErrCacheCorrupt is returned when a cached envelope cannot be opened.
var ErrCacheCorrupt = errors.New("token: cache entry corrupt or wrong passphrase")

// Entry is a cached token.
type Entry struct {
	Token   string
	SavedAt time.Time
}

// envelope is the persisted form of an Entry.
type envelope struct {
	Version    int       `json:"version"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	SavedAt    time.Time `json:"saved_at"`
}

// Sealer encrypts cache entries under a passphrase.
type Sealer struct {
	passphrase []byte
}

// NewSealer creates a sealer. An empty passphrase is allowed but only
// obscures the token.
func NewSealer(passphrase string) *Sealer {
	return &Sealer{passphrase: []byte(passphrase)}
}

func (s *Sealer) key(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// Seal encrypts an entry into its persisted form.
func (s *Sealer) Seal(e Entry) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	env := envelope{
		Version:    envelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, []byte(e.Token), additionalData),
		SavedAt:    e.SavedAt.UTC(),
	}
	return json.MarshalIndent(env, "", "  ")
}

// Open decrypts a persisted entry.
func (s *Sealer) Open(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
	}
	if env.Version != envelopeVersion {
		return Entry{}, fmt.Errorf("%w: version %d", ErrCacheCorrupt, env.Version)
	}
	aead, err := chacha20poly1305.NewX(s.key(env.Salt))
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
	}
	if len(env.Nonce) != aead.NonceSize() {
		return Entry{}, fmt.Errorf("%w: bad nonce", ErrCacheCorrupt)
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, additionalData)
	if err != nil {
		return Entry{}, ErrCacheCorrupt
	}
	return Entry{Token: string(plain), SavedAt: env.SavedAt}, nil
}
