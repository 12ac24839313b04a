package mapcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/rollback"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// Core is the lifecycle controller of one map widget mount. It owns the
// state machine, the resources, the checkpoint history and the widget
// handle. Use New() to create an instance.
type Core struct {
	config Config
	opts   options
	logger log.Logger

	bus         *event.Bus
	lifecycle   *lifecycle.DefaultManager
	resources   *resource.Manager
	rollback    *rollback.Manager
	widget      *handle
	events      *Events
	initializer *Initializer
	cleanup     *Cleanup

	// mu serializes Initialize, Cleanup, ReloadStyle and runtime recovery.
	mu             sync.Mutex
	pluginsStarted bool
	recovering     sync.WaitGroup
}

// New creates a controller in the uninitialized state.
// Returns an error if configuration is invalid or no loader is set.
func New(cfg Config, opts ...Option) (*Core, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		return nil, fmt.Errorf("%w: module loader is required", domain.ErrInvalidConfig)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	logger := o.logger

	bus := o.bus
	if bus == nil {
		bus = event.NewBus(log.Named(logger, "bus"))
	}
	if o.metrics != nil {
		o.metrics.Attach(bus)
	}

	lc := lifecycle.NewManager(log.Named(logger, "lifecycle"), busEmitter{bus: bus})
	resources := resource.NewManager(lc, bus, o.httpClient, o.tokenCache, logger)
	rb := rollback.NewManager(lc, resources, logger)
	if o.metrics != nil {
		rb.SetObserver(o.metrics)
	}

	events := &Events{
		bus:       bus,
		lifecycle: lc,
		rollback:  rb,
		logger:    log.Named(logger, "events"),
	}
	h := &handle{
		resources:    resources,
		events:       events,
		styleTimeout: cfg.StyleLoadTimeout,
		logger:       log.Named(logger, "widget"),
	}
	rb.SetWidget(h)

	cleanup := &Cleanup{
		widget:    h,
		resources: resources,
		lifecycle: lc,
		rollback:  rb,
		logger:    log.Named(logger, "cleanup"),
	}
	h.reset = cleanup.Run

	c := &Core{
		config:      cfg,
		opts:        o,
		logger:      logger,
		bus:         bus,
		lifecycle:   lc,
		resources:   resources,
		rollback:    rb,
		widget:      h,
		events:      events,
		cleanup:     cleanup,
		initializer: newInitializer(cfg, o.loader, lc, resources, rb, h, bus, o.tracer, logger),
	}
	events.onRuntimeError = c.onRuntimeError
	return c, nil
}

// Initialize brings the map up inside container. It returns true once the
// map is ready. Failures are reported through error events on the bus.
// Calling Initialize on a ready controller returns true without work.
func (c *Core) Initialize(ctx context.Context, container widget.Container, opts widget.Options) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch state := c.lifecycle.State(); state {
	case lifecycle.StateReady:
		return true
	case lifecycle.StateUninitialized, lifecycle.StateError:
	default:
		c.logger.Warn("initialize called during bring-up", log.State("state", state))
		return false
	}

	if !c.initializer.Run(ctx, container, opts) {
		return false
	}
	c.startPlugins(ctx)
	return true
}

// Map returns the map instance, or nil.
func (c *Core) Map() widget.Map {
	return c.widget.current()
}

// IsStyleLoaded reports whether a map exists and has its style.
func (c *Core) IsStyleLoaded() bool {
	return c.widget.IsStyleLoaded()
}

// Cleanup tears everything down. Safe to call at any time, any number of
// times.
func (c *Core) Cleanup(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopPlugins(ctx)
	if err := c.cleanup.Run(ctx); err != nil {
		c.logger.Error("cleanup failed", log.Err(err))
	}
}

// State returns the current lifecycle state.
func (c *Core) State() lifecycle.State {
	return c.lifecycle.State()
}

// Bus returns the event bus.
func (c *Core) Bus() *event.Bus {
	return c.bus
}

// ResourceState returns the mirrored state of a resource.
func (c *Core) ResourceState(kind domain.ResourceKind) resource.State {
	return c.resources.GetResourceState(kind)
}

// ResourceMetrics returns the accumulated metrics of a resource.
func (c *Core) ResourceMetrics(kind domain.ResourceKind) resource.Metrics {
	return c.resources.GetMetrics(kind)
}

// ValidateResource re-checks a ready resource, probing the token provider
// again when force is set.
func (c *Core) ValidateResource(ctx context.Context, kind domain.ResourceKind, force bool) bool {
	return c.resources.ValidateResource(ctx, kind, force)
}

// Checkpoints returns the retained checkpoints, oldest first.
func (c *Core) Checkpoints() []rollback.Checkpoint {
	return c.rollback.Checkpoints()
}

// ReloadStyle replaces the style of a ready map and waits for it to load.
func (c *Core) ReloadStyle(ctx context.Context, style string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state := c.lifecycle.State(); state != lifecycle.StateReady {
		return fmt.Errorf("%w: map is %s", domain.ErrNoMap, state)
	}
	if err := c.widget.setStyle(ctx, style); err != nil {
		c.bus.Publish(event.NewErrorEvent("style", c.lifecycle.State().String(), err))
		return err
	}
	c.logger.Info("style reloaded", log.String("style", style))
	return nil
}

// Wait blocks until in-flight runtime recoveries have finished.
func (c *Core) Wait() {
	c.recovering.Wait()
}

// onRuntimeError recovers from a widget error raised while ready. It runs
// on its own goroutine so the widget callback returns immediately.
func (c *Core) onRuntimeError(err error) {
	c.recovering.Add(1)
	go func() {
		defer c.recovering.Done()
		c.recoverRuntime(context.Background())
	}()
}

func (c *Core) recoverRuntime(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Cleanup or another recovery may have run first.
	if c.lifecycle.State() != lifecycle.StateReady || !c.widget.IsInitialized() {
		return
	}

	cp, found := c.rollback.Latest()
	if !found {
		c.failRuntime(domain.ErrNoCheckpoint)
		return
	}
	if _, err := c.rollback.RecoverToCheckpoint(ctx, cp); err != nil {
		c.failRuntime(err)
		return
	}
	c.initializer.Resume(ctx)
}

func (c *Core) failRuntime(err error) {
	c.logger.Error("runtime recovery failed", log.Err(err))
	c.bus.Publish(event.NewErrorEvent("recovery", c.lifecycle.State().String(), err))
	if c.lifecycle.State() != lifecycle.StateError {
		_ = c.lifecycle.TransitionTo(lifecycle.StateError, "runtime recovery failed")
	}
}

func (c *Core) startPlugins(ctx context.Context) {
	if c.pluginsStarted {
		return
	}
	cfg := PluginConfig{
		Logger: c.logger,
		Bus:    c.bus,
		Styler: styler{c},
	}
	for _, p := range c.opts.plugins {
		if err := p.Initialize(ctx, cfg); err != nil {
			c.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			continue
		}
		c.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	c.pluginsStarted = true
}

func (c *Core) stopPlugins(ctx context.Context) {
	if !c.pluginsStarted {
		return
	}
	for i := len(c.opts.plugins) - 1; i >= 0; i-- {
		p := c.opts.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			c.logger.Warn("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		}
	}
	c.pluginsStarted = false
}

// styler lets plugins change the style without holding the Core.
type styler struct{ c *Core }

func (s styler) ReloadStyle(ctx context.Context, style string) error {
	return s.c.ReloadStyle(ctx, style)
}
