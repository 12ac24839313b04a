package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/token"
)

// DefaultValidationWindow is how long a successful token validation is
// trusted before Validate probes the provider again.
const DefaultValidationWindow = 30 * time.Minute

// TokenConfig configures the token resource.
type TokenConfig struct {
	Override    string `validate:"omitempty,maptoken"`
	BackendURL  string `validate:"omitempty,url"`
	BackendAuth string
	// BackendRetries is the number of extra backend attempts after a
	// transport error or 5xx response.
	BackendRetries int           `validate:"gte=0"`
	ProbeURL       string        `validate:"omitempty,url"`
	CacheMaxAge    time.Duration `validate:"gte=0"`
	// ValidationWindow defaults to DefaultValidationWindow when zero.
	ValidationWindow time.Duration `validate:"gte=0"`
	ProbeInterval    time.Duration `validate:"gte=0"`
}

// TokenResource acquires the provider access token through the source chain.
type TokenResource struct {
	*tracker

	client token.HTTPClient
	cache  token.Cache

	mu       sync.Mutex
	provider *token.Provider
	window   time.Duration
	secret   *token.Secret
}

// NewTokenResource creates an unconfigured token resource. client and cache
// may be nil.
func NewTokenResource(client token.HTTPClient, cache token.Cache, logger log.Logger) *TokenResource {
	return &TokenResource{
		tracker: newTracker(domain.KindToken, logger),
		client:  client,
		cache:   cache,
	}
}

// Configure validates cfg and builds the source chain. At least one source
// must be available.
func (r *TokenResource) Configure(cfg TokenConfig) bool {
	if err := validate.Struct(cfg); err != nil {
		r.logger.Error("invalid token config", log.Err(err))
		return false
	}
	if cfg.Override == "" && cfg.BackendURL == "" && r.cache == nil {
		r.logger.Error("invalid token config", log.Err(fmt.Errorf("%w: no token source", domain.ErrInvalidConfig)))
		return false
	}

	window := cfg.ValidationWindow
	if window == 0 {
		window = DefaultValidationWindow
	}

	r.mu.Lock()
	r.provider = token.NewProvider(token.ProviderConfig{
		Override:       cfg.Override,
		BackendURL:     cfg.BackendURL,
		BackendAuth:    cfg.BackendAuth,
		BackendRetries: cfg.BackendRetries,
		CacheMaxAge:    cfg.CacheMaxAge,
		ProbeURL:       cfg.ProbeURL,
		ProbeInterval:  cfg.ProbeInterval,
	}, r.client, r.cache, r.logger)
	r.window = window
	r.mu.Unlock()
	return true
}

// Acquire resolves, format-checks and probes a token.
func (r *TokenResource) Acquire(ctx context.Context) bool {
	r.mu.Lock()
	provider := r.provider
	r.mu.Unlock()
	if provider == nil {
		return r.fail(domain.ErrNotConfigured)
	}

	r.set(StatusLoading, "")
	start := time.Now()

	res, err := provider.Resolve(ctx)
	if err != nil {
		return r.fail(err)
	}

	r.mu.Lock()
	r.secret = res.Secret
	r.mu.Unlock()

	now := time.Now()
	r.recordLoad(now.Sub(start))
	r.recordValidation(now.Sub(start), now)
	return r.set(StatusReady, "")
}

// Validate re-checks a ready token. Unless force is set, a token validated
// within the window is trusted without a probe.
func (r *TokenResource) Validate(ctx context.Context, force bool) bool {
	if r.status() != StatusReady {
		return false
	}
	if !force && time.Since(r.Metrics().LastValidated) < r.window {
		return true
	}

	r.mu.Lock()
	provider, secret := r.provider, r.secret
	r.mu.Unlock()

	start := time.Now()
	tok, err := secret.Reveal()
	if err == nil {
		err = provider.Check(ctx, tok)
	}
	if err != nil {
		return r.fail(fmt.Errorf("token revalidation: %w", err))
	}

	now := time.Now()
	r.recordValidation(now.Sub(start), now)
	return true
}

// Release drops the token. The configuration is kept.
func (r *TokenResource) Release() {
	r.mu.Lock()
	r.secret = nil
	r.mu.Unlock()
	r.reset()
}

// Secret returns the accepted token, or nil before a successful Acquire.
func (r *TokenResource) Secret() *token.Secret {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.secret
}
