package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// DOMConfig configures the DOM container resource.
type DOMConfig struct {
	Container    widget.Container `validate:"required"`
	ValidateSize bool
	MinWidth     int `validate:"gte=0"`
	MinHeight    int `validate:"gte=0"`
}

// DOMResource tracks the caller-supplied mount point.
type DOMResource struct {
	*tracker

	mu  sync.Mutex
	cfg *DOMConfig
}

// NewDOMResource creates an unconfigured DOM resource.
func NewDOMResource(logger log.Logger) *DOMResource {
	return &DOMResource{tracker: newTracker(domain.KindDOM, logger)}
}

// Configure requires a container that is connected right now.
func (r *DOMResource) Configure(cfg DOMConfig) bool {
	if err := validate.Struct(cfg); err != nil {
		r.logger.Error("invalid dom config", log.Err(err))
		return false
	}
	if !cfg.Container.Connected() {
		r.logger.Error("invalid dom config", log.Err(domain.ErrContainerDetached))
		return false
	}
	r.mu.Lock()
	r.cfg = &cfg
	r.mu.Unlock()
	return true
}

func (r *DOMResource) check() error {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()
	if cfg == nil {
		return domain.ErrNotConfigured
	}
	if !cfg.Container.Connected() {
		return fmt.Errorf("%w: %s", domain.ErrContainerDetached, cfg.Container.ID())
	}
	if cfg.ValidateSize {
		w, h := cfg.Container.Size()
		if w < cfg.MinWidth || h < cfg.MinHeight {
			return fmt.Errorf("%w: %dx%d, need %dx%d",
				domain.ErrContainerTooSmall, w, h, cfg.MinWidth, cfg.MinHeight)
		}
	}
	return nil
}

// Acquire checks connectivity and size.
func (r *DOMResource) Acquire(ctx context.Context) bool {
	r.mu.Lock()
	configured := r.cfg != nil
	r.mu.Unlock()
	if !configured {
		return r.fail(domain.ErrNotConfigured)
	}

	r.set(StatusLoading, "")
	start := time.Now()
	if err := r.check(); err != nil {
		return r.fail(err)
	}
	r.recordLoad(time.Since(start))
	return r.set(StatusReady, "")
}

// Validate re-runs the acquisition checks on a ready container.
func (r *DOMResource) Validate(ctx context.Context, force bool) bool {
	if r.status() != StatusReady {
		return false
	}
	start := time.Now()
	if err := r.check(); err != nil {
		return r.fail(err)
	}
	now := time.Now()
	r.recordValidation(now.Sub(start), now)
	return true
}

// Release resets the status. The container stays configured.
func (r *DOMResource) Release() {
	r.reset()
}

// Container returns the configured container, or nil.
func (r *DOMResource) Container() widget.Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg == nil {
		return nil
	}
	return r.cfg.Container
}
