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

// ModuleConfig configures the module resource.
type ModuleConfig struct {
	Loader widget.Loader `validate:"required"`
	// ValidateInstance requires the loaded module to report Ready.
	ValidateInstance bool
	// ValidateDependencies requires the token resource to be ready before
	// the module is acquired.
	ValidateDependencies bool
}

// ModuleResource loads the rendering module.
type ModuleResource struct {
	*tracker

	mu     sync.Mutex
	cfg    *ModuleConfig
	module widget.Module
}

// NewModuleResource creates an unconfigured module resource.
func NewModuleResource(logger log.Logger) *ModuleResource {
	return &ModuleResource{tracker: newTracker(domain.KindModule, logger)}
}

// Configure stores cfg if it is structurally valid.
func (r *ModuleResource) Configure(cfg ModuleConfig) bool {
	if err := validate.Struct(cfg); err != nil {
		r.logger.Error("invalid module config", log.Err(err))
		return false
	}
	r.mu.Lock()
	r.cfg = &cfg
	r.mu.Unlock()
	return true
}

// Acquire resolves the loader.
func (r *ModuleResource) Acquire(ctx context.Context) bool {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()
	if cfg == nil {
		return r.fail(domain.ErrNotConfigured)
	}

	r.set(StatusLoading, "")
	start := time.Now()

	mod, err := cfg.Loader.Load(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("load module: %w", err))
	}
	if mod == nil || (cfg.ValidateInstance && !mod.Ready()) {
		return r.fail(domain.ErrModuleNotReady)
	}

	r.mu.Lock()
	r.module = mod
	r.mu.Unlock()

	r.recordLoad(time.Since(start))
	return r.set(StatusReady, "")
}

// Validate checks that the loaded module still reports ready.
func (r *ModuleResource) Validate(ctx context.Context, force bool) bool {
	if r.status() != StatusReady {
		return false
	}
	start := time.Now()
	mod := r.Module()
	if mod == nil || !mod.Ready() {
		return r.fail(domain.ErrModuleNotReady)
	}
	now := time.Now()
	r.recordValidation(now.Sub(start), now)
	return true
}

// Release forgets the loaded module.
func (r *ModuleResource) Release() {
	r.mu.Lock()
	r.module = nil
	r.mu.Unlock()
	r.reset()
}

// Module returns the loaded module, or nil.
func (r *ModuleResource) Module() widget.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.module
}

func (r *ModuleResource) requiresDependencies() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg != nil && r.cfg.ValidateDependencies
}
