package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
)

// ProviderConfig configures the token source chain.
type ProviderConfig struct {
	// Override, when set, is tried before any other source.
	Override string

	// BackendURL enables the backend source when non-empty.
	BackendURL     string
	BackendAuth    string
	BackendRetries int

	// CacheMaxAge bounds how old a cached token may be. Zero means no limit.
	CacheMaxAge time.Duration

	ProbeURL      string
	ProbeInterval time.Duration
}

// Result is an accepted token and the source that produced it.
type Result struct {
	Secret *Secret
	Source string
}

// Provider walks the source chain and validates candidates.
type Provider struct {
	sources []Source
	cache   Cache
	prober  *Prober
	logger  log.Logger
	group   singleflight.Group
}

// NewProvider creates a provider. cache may be nil.
func NewProvider(cfg ProviderConfig, client HTTPClient, cache Cache, logger log.Logger) *Provider {
	logger = log.Named(logger, "token")

	sources := []Source{OverrideSource{Token: cfg.Override}}
	if cache != nil {
		sources = append(sources, CacheSource{Cache: cache, MaxAge: cfg.CacheMaxAge})
	}
	if cfg.BackendURL != "" {
		sources = append(sources, NewBackendSource(client, BackendConfig{
			URL:        cfg.BackendURL,
			AuthToken:  cfg.BackendAuth,
			MaxRetries: cfg.BackendRetries,
		}))
	}

	return &Provider{
		sources: sources,
		cache:   cache,
		prober:  NewProber(client, cfg.ProbeURL, cfg.ProbeInterval),
		logger:  logger,
	}
}

// Resolve returns the first candidate that passes format and probe checks.
// Concurrent callers share one resolution.
func (p *Provider) Resolve(ctx context.Context) (*Result, error) {
	v, err, _ := p.group.Do("resolve", func() (interface{}, error) {
		return p.resolve(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (p *Provider) resolve(ctx context.Context) (*Result, error) {
	var errs []error
	for _, src := range p.sources {
		candidate, err := src.Fetch(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNoToken) && !errors.Is(err, ErrCacheMiss) {
				p.logger.Warn("token source failed",
					log.String("source", src.Name()),
					log.Err(err),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		if err := p.Check(ctx, candidate); err != nil {
			p.logger.Warn("token candidate rejected",
				log.String("source", src.Name()),
				log.String("token", Mask(candidate)),
				log.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			if src.Name() == SourceCache {
				p.clearCache(ctx)
			}
			continue
		}

		if src.Name() == SourceBackend {
			if err := p.Save(ctx, candidate); err != nil {
				p.logger.Warn("failed to cache token", log.Err(err))
			}
		}

		secret, err := NewSecret(candidate)
		if err != nil {
			return nil, err
		}
		p.logger.Info("token resolved",
			log.String("source", src.Name()),
			log.String("token", secret.String()),
		)
		return &Result{Secret: secret, Source: src.Name()}, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrNoToken, errors.Join(errs...))
}

// Check runs the format check followed by the live probe.
func (p *Provider) Check(ctx context.Context, token string) error {
	if err := ValidateFormat(token); err != nil {
		return err
	}
	return p.prober.Probe(ctx, token)
}

// Save writes a token to the cache. It is a no-op without a cache.
func (p *Provider) Save(ctx context.Context, token string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Save(ctx, Entry{Token: token, SavedAt: time.Now()})
}

func (p *Provider) clearCache(ctx context.Context) {
	if err := p.cache.Clear(ctx); err != nil {
		p.logger.Warn("failed to clear token cache", log.Err(err))
	}
}
