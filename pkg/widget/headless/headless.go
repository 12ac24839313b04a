// Package headless is an in-process implementation of the widget contracts.
// It renders nothing and lets callers script readiness, failures, timing and
// viewport moves. The CLI uses it for dry runs; tests use it as the module
// under control.
package headless

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/mapkit/pkg/widget"
)

// Container is a scripted mount point.
type Container struct {
	id        string
	mu        sync.RWMutex
	connected bool
	width     int
	height    int
}

// NewContainer returns a connected container of the given size.
func NewContainer(id string, width, height int) *Container {
	return &Container{id: id, connected: true, width: width, height: height}
}

// ID returns the container id.
func (c *Container) ID() string { return c.id }

// Connected reports whether the container is attached.
func (c *Container) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Size returns the container size.
func (c *Container) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// Detach marks the container as removed from the document.
func (c *Container) Detach() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// Resize changes the reported size.
func (c *Container) Resize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
}

// ModuleConfig scripts module behavior.
type ModuleConfig struct {
	// LoadError makes Load fail.
	LoadError error
	// NotReady makes the module report Ready() == false.
	NotReady bool
	// ConstructError makes NewMap fail.
	ConstructError error
	// StyleDelay is how long after construction or SetStyle the map fires
	// style.load. Zero fires immediately on a separate goroutine.
	StyleDelay time.Duration
	// NeverLoadStyle suppresses style.load entirely.
	NeverLoadStyle bool
}

// Module is a scripted rendering module.
type Module struct {
	cfg   ModuleConfig
	mu    sync.Mutex
	ready bool
	maps  []*Map
	loads atomic.Int32
}

// NewModule creates a module with the given behavior.
func NewModule(cfg ModuleConfig) *Module {
	return &Module{cfg: cfg, ready: !cfg.NotReady}
}

// Loader returns a widget.Loader resolving to m.
func (m *Module) Loader() widget.Loader {
	return widget.LoaderFunc(func(ctx context.Context) (widget.Module, error) {
		m.loads.Add(1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		loadErr := m.cfg.LoadError
		m.mu.Unlock()
		if loadErr != nil {
			return nil, loadErr
		}
		return m, nil
	})
}

// Loads returns how many times the loader was invoked.
func (m *Module) Loads() int { return int(m.loads.Load()) }

// SetLoadError changes the load failure for subsequent loads.
func (m *Module) SetLoadError(err error) {
	m.mu.Lock()
	m.cfg.LoadError = err
	m.mu.Unlock()
}

// SetNeverLoadStyle changes whether new maps and style changes fire style.load.
func (m *Module) SetNeverLoadStyle(never bool) {
	m.mu.Lock()
	m.cfg.NeverLoadStyle = never
	m.mu.Unlock()
}

// SetReady changes the module readiness flag.
func (m *Module) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

// Ready reports the module readiness flag.
func (m *Module) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Maps returns every map constructed so far.
func (m *Module) Maps() []*Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Map(nil), m.maps...)
}

// NewMap constructs a scripted map.
func (m *Module) NewMap(container widget.Container, opts widget.Options) (widget.Map, error) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	if cfg.ConstructError != nil {
		return nil, cfg.ConstructError
	}
	if container == nil || !container.Connected() {
		return nil, errors.New("headless: container not connected")
	}

	mp := &Map{
		module:    m,
		listeners: make(map[string]map[int]widget.Listener),
		center:    opts.Center,
		zoom:      opts.Zoom,
	}
	m.mu.Lock()
	m.maps = append(m.maps, mp)
	m.mu.Unlock()

	mp.SetStyle(opts.Style)
	return mp, nil
}

// Map is a scripted map instance.
type Map struct {
	module *Module

	mu          sync.Mutex
	listeners   map[string]map[int]widget.Listener
	nextID      int
	styleLoaded bool
	style       string
	removed     bool
	center      widget.LngLat
	zoom        float64
	timer       *time.Timer
}

// IsStyleLoaded reports whether style.load has fired for the current style.
func (mp *Map) IsStyleLoaded() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.styleLoaded
}

// Style returns the current style.
func (mp *Map) Style() string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.style
}

// Removed reports whether Remove was called.
func (mp *Map) Removed() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.removed
}

// SetStyle applies a style and schedules style.load.
func (mp *Map) SetStyle(style string) {
	mp.module.mu.Lock()
	cfg := mp.module.cfg
	mp.module.mu.Unlock()

	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.removed {
		return
	}
	mp.style = style
	mp.styleLoaded = false
	if mp.timer != nil {
		mp.timer.Stop()
		mp.timer = nil
	}
	if cfg.NeverLoadStyle {
		return
	}
	mp.timer = time.AfterFunc(cfg.StyleDelay, func() {
		mp.mu.Lock()
		if mp.removed || mp.style != style {
			mp.mu.Unlock()
			return
		}
		mp.styleLoaded = true
		mp.mu.Unlock()
		mp.fire(widget.Event{Type: widget.EventStyleLoad})
	})
}

// On registers a listener.
func (mp *Map) On(event string, fn widget.Listener) func() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	id := mp.nextID
	mp.nextID++
	if mp.listeners[event] == nil {
		mp.listeners[event] = make(map[int]widget.Listener)
	}
	mp.listeners[event][id] = fn

	return func() {
		mp.mu.Lock()
		delete(mp.listeners[event], id)
		mp.mu.Unlock()
	}
}

// ListenerCount returns the number of registered listeners.
func (mp *Map) ListenerCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	n := 0
	for _, ls := range mp.listeners {
		n += len(ls)
	}
	return n
}

// Remove destroys the map.
func (mp *Map) Remove() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.removed = true
	mp.styleLoaded = false
	if mp.timer != nil {
		mp.timer.Stop()
		mp.timer = nil
	}
}

// FailRuntime emits a runtime error event.
func (mp *Map) FailRuntime(err error) {
	mp.mu.Lock()
	mp.styleLoaded = false
	mp.mu.Unlock()
	mp.fire(widget.Event{Type: widget.EventError, Err: err})
}

// MoveTo changes the viewport and emits moveend.
func (mp *Map) MoveTo(center widget.LngLat, zoom float64) {
	mp.mu.Lock()
	mp.center = center
	mp.zoom = zoom
	mp.mu.Unlock()
	mp.fire(widget.Event{Type: widget.EventMoveEnd, Center: center, Zoom: zoom})
}

func (mp *Map) fire(ev widget.Event) {
	mp.mu.Lock()
	if mp.removed {
		mp.mu.Unlock()
		return
	}
	ls := make([]widget.Listener, 0, len(mp.listeners[ev.Type]))
	ids := make([]int, 0, len(mp.listeners[ev.Type]))
	for id := range mp.listeners[ev.Type] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		ls = append(ls, mp.listeners[ev.Type][id])
	}
	mp.mu.Unlock()

	for _, fn := range ls {
		fn(ev)
	}
}

var (
	_ widget.Container = (*Container)(nil)
	_ widget.Module    = (*Module)(nil)
	_ widget.Map       = (*Map)(nil)
)
