package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/token"
)

// Config holds the configuration of all three resources.
type Config struct {
	Token  TokenConfig
	Module ModuleConfig
	DOM    DOMConfig
}

// Manager owns one instance of each resource kind.
//
// Acquisition success is pushed into the lifecycle manager; it is the only
// path by which readiness becomes visible to the state machine. Release and
// failed validation push the flag back to false.
type Manager struct {
	token  *TokenResource
	module *ModuleResource
	dom    *DOMResource

	lifecycle lifecycle.Manager
	bus       *event.Bus
	logger    log.Logger

	mu       sync.RWMutex
	snapshot map[domain.ResourceKind]State
}

// NewManager creates a manager with all resources pending. lc and bus may be
// nil; client and cache are handed to the token resource.
func NewManager(lc lifecycle.Manager, bus *event.Bus, client token.HTTPClient, cache token.Cache, logger log.Logger) *Manager {
	m := &Manager{
		token:     NewTokenResource(client, cache, logger),
		module:    NewModuleResource(logger),
		dom:       NewDOMResource(logger),
		lifecycle: lc,
		bus:       bus,
		logger:    log.Named(logger, "resources"),
		snapshot:  make(map[domain.ResourceKind]State, len(domain.AllKinds)),
	}
	for _, kind := range domain.AllKinds {
		r := m.resource(kind)
		m.snapshot[kind] = r.State()
		r.base().notify = m.onStatus
	}
	return m
}

// resource dispatches on kind. It returns nil for unknown kinds.
func (m *Manager) resource(kind domain.ResourceKind) Resource {
	switch kind {
	case domain.KindToken:
		return m.token
	case domain.KindModule:
		return m.module
	case domain.KindDOM:
		return m.dom
	default:
		return nil
	}
}

// onStatus mirrors a status change and publishes it.
func (m *Manager) onStatus(kind domain.ResourceKind, s State) {
	m.mu.Lock()
	m.snapshot[kind] = s
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(event.NewResourceUpdateEvent(kind, s.Status.String(), s.Error))
	}
}

// Configure configures every resource and reports which configurations
// were structurally valid. It performs no I/O besides the DOM connectivity
// check.
func (m *Manager) Configure(cfg Config) map[domain.ResourceKind]bool {
	return map[domain.ResourceKind]bool{
		domain.KindToken:  m.token.Configure(cfg.Token),
		domain.KindModule: m.module.Configure(cfg.Module),
		domain.KindDOM:    m.dom.Configure(cfg.DOM),
	}
}

// AcquireResource acquires one resource. A module configured with
// dependency validation fails without loading when the token is not ready.
func (m *Manager) AcquireResource(ctx context.Context, kind domain.ResourceKind) bool {
	r := m.resource(kind)
	if r == nil {
		m.logger.Error("unknown resource kind", log.String("resource", string(kind)))
		return false
	}

	if kind == domain.KindModule && m.module.requiresDependencies() {
		for _, dep := range kind.Dependencies() {
			if m.resource(dep).State().Status != StatusReady {
				return r.base().fail(fmt.Errorf("%w: %s requires %s", domain.ErrDependencyNotReady, kind, dep))
			}
		}
	}

	ok := r.Acquire(ctx)
	if ok {
		m.logger.Debug("resource acquired",
			log.Kind(kind),
			log.Duration("load_time", r.Metrics().LoadTime),
		)
		m.push(kind, true)
	}
	return ok
}

// ReleaseResource releases one resource. It always succeeds.
func (m *Manager) ReleaseResource(kind domain.ResourceKind) {
	r := m.resource(kind)
	if r == nil {
		return
	}
	r.Release()
	m.push(kind, false)
}

// ValidateResource re-checks a ready resource.
func (m *Manager) ValidateResource(ctx context.Context, kind domain.ResourceKind, force bool) bool {
	r := m.resource(kind)
	if r == nil {
		return false
	}
	ok := r.Validate(ctx, force)
	if !ok {
		m.push(kind, false)
	}
	return ok
}

// GetResourceState returns the mirrored state of a resource.
func (m *Manager) GetResourceState(kind domain.ResourceKind) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot[kind]
}

// GetMetrics returns the accumulated metrics of a resource.
func (m *Manager) GetMetrics(kind domain.ResourceKind) Metrics {
	r := m.resource(kind)
	if r == nil {
		return Metrics{}
	}
	return r.Metrics()
}

// ReleaseAll releases every resource in reverse dependency order.
func (m *Manager) ReleaseAll() {
	for _, kind := range domain.ReleaseOrder {
		m.ReleaseResource(kind)
	}
}

// AllReady reports whether every resource is ready.
func (m *Manager) AllReady() bool {
	for _, kind := range domain.AllKinds {
		if m.GetResourceState(kind).Status != StatusReady {
			return false
		}
	}
	return true
}

// Token returns the token resource.
func (m *Manager) Token() *TokenResource { return m.token }

// Module returns the module resource.
func (m *Manager) Module() *ModuleResource { return m.module }

// DOM returns the DOM resource.
func (m *Manager) DOM() *DOMResource { return m.dom }

func (m *Manager) push(kind domain.ResourceKind, ready bool) {
	if m.lifecycle != nil {
		m.lifecycle.UpdateResourceState(lifecycle.ResourceUpdate{kind: ready})
	}
}
