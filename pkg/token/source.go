package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
)

// Source names.
const (
	SourceOverride = "override"
	SourceCache    = "cache"
	SourceBackend  = "backend"
)

// Source yields a candidate token.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (string, error)
}

// OverrideSource returns an explicitly configured token.
type OverrideSource struct {
	Token string
}

func (s OverrideSource) Name() string { return SourceOverride }

func (s OverrideSource) Fetch(ctx context.Context) (string, error) {
	if s.Token == "" {
		return "", domain.ErrNoToken
	}
	return s.Token, nil
}

// CacheSource returns the persisted token if it is younger than MaxAge.
// A zero MaxAge accepts entries of any age.
type CacheSource struct {
	Cache  Cache
	MaxAge time.Duration
	now    func() time.Time
}

func (s CacheSource) Name() string { return SourceCache }

func (s CacheSource) Fetch(ctx context.Context) (string, error) {
	if s.Cache == nil {
		return "", ErrCacheMiss
	}
	e, err := s.Cache.Load(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	if s.MaxAge > 0 && now().Sub(e.SavedAt) > s.MaxAge {
		return "", fmt.Errorf("%w: entry expired", ErrCacheMiss)
	}
	return e.Token, nil
}

// BackendSource fetches a token from the application backend.
type BackendSource struct {
	client     HTTPClient
	url        string
	auth       string
	maxRetries int
	initial    time.Duration
	max        time.Duration
}

// BackendConfig configures BackendSource.
type BackendConfig struct {
	// URL is the backend base URL; the token is read from <URL>/v1/map/token.
	URL string
	// AuthToken is sent as a bearer token when set.
	AuthToken    string
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// NewBackendSource creates a backend source.
func NewBackendSource(client HTTPClient, cfg BackendConfig) *BackendSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 500 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}
	return &BackendSource{
		client:     client,
		url:        strings.TrimRight(cfg.URL, "/") + "/v1/map/token",
		auth:       cfg.AuthToken,
		maxRetries: cfg.MaxRetries,
		initial:    cfg.RetryInitial,
		max:        cfg.RetryMax,
	}
}

func (s *BackendSource) Name() string { return SourceBackend }

// errPermanent marks backend responses that retrying cannot fix.
var errPermanent = errors.New("permanent backend error")

// Fetch requests the token, retrying transport errors and 5xx responses.
func (s *BackendSource) Fetch(ctx context.Context) (string, error) {
	b := newBackoff(s.initial, s.max)
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := b.Wait(ctx); err != nil {
				return "", err
			}
		}
		tok, err := s.fetchOnce(ctx)
		if err == nil {
			return tok, nil
		}
		lastErr = err
		if errors.Is(err, errPermanent) {
			break
		}
	}
	return "", fmt.Errorf("backend token: %w", lastErr)
}

func (s *BackendSource) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", errPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.auth != "" {
		req.Header.Set("Authorization", "Bearer "+s.auth)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("backend returned %d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return "", fmt.Errorf("%w: backend returned %d", errPermanent, resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", errPermanent, err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: %w", errPermanent, domain.ErrNoToken)
	}
	return payload.Token, nil
}
