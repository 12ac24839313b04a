package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bft-labs/mapkit/internal/domain"
)

// DefaultProbeURL is a small vector tile request on the provider.
const DefaultProbeURL = "https://api.mapbox.com/v4/mapbox.mapbox-streets-v8/0/0/0.mvt"

// Prober checks a token against the live tile provider.
type Prober struct {
	client  HTTPClient
	url     string
	limiter *rate.Limiter
}

// NewProber creates a prober. Probes are limited to one every interval with
// a small burst; a zero interval disables limiting.
func NewProber(client HTTPClient, probeURL string, interval time.Duration) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if probeURL == "" {
		probeURL = DefaultProbeURL
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Prober{
		client:  client,
		url:     probeURL,
		limiter: rate.NewLimiter(limit, 3),
	}
}

// Probe issues a GET with the candidate token. Any non-2xx response is a
// validation failure.
func (p *Prober) Probe(ctx context.Context, token string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProbeFailed, err)
	}

	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("%w: parse probe url: %w", domain.ErrProbeFailed, err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", domain.ErrProbeFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", domain.ErrProbeFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: provider returned %d", domain.ErrProbeFailed, resp.StatusCode)
	}
	return nil
}
