package mapcore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/resource"
	"github.com/bft-labs/mapkit/pkg/widget"
	"github.com/bft-labs/mapkit/pkg/widget/headless"
)

const testToken = "pk.eyJ1IjoibWFwa2l0In0.c2lnbmF0dXJl"

// recorder captures every bus event.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) errors() []event.ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.ErrorEvent
	for _, e := range r.events {
		if ev, ok := e.(event.ErrorEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if ev, ok := e.(event.StateChangeEvent); ok {
			out = append(out, ev.Previous+">"+ev.Current)
		}
	}
	return out
}

func (r *recorder) locations() []event.LocationUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.LocationUpdateEvent
	for _, e := range r.events {
		if ev, ok := e.(event.LocationUpdateEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	core   *Core
	module *headless.Module
	events *recorder
}

func newFixture(t *testing.T, modCfg headless.ModuleConfig, mutate func(*Config), opts ...Option) *fixture {
	t.Helper()

	tiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == testToken {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(tiles.Close)

	cfg := DefaultConfig()
	cfg.Token.Override = testToken
	cfg.Token.ProbeURL = tiles.URL
	cfg.StyleLoadTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	mod := headless.NewModule(modCfg)
	opts = append([]Option{WithLoader(mod.Loader()), WithHTTPClient(tiles.Client())}, opts...)
	core, err := New(cfg, opts...)
	require.NoError(t, err)

	rec := &recorder{}
	core.Bus().SubscribeAll(rec.handle)

	t.Cleanup(func() { core.Cleanup(context.Background()) })
	return &fixture{core: core, module: mod, events: rec}
}

func mapOptions() widget.Options {
	return widget.Options{
		Style:  "mapbox://styles/mapbox/streets-v12",
		Center: widget.LngLat{Lng: -122.42, Lat: 37.77},
		Zoom:   12,
	}
}

func TestInitialize_Success(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	container := headless.NewContainer("map", 400, 300)

	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))

	assert.Equal(t, lifecycle.StateReady, f.core.State())
	require.NotNil(t, f.core.Map())
	assert.True(t, f.core.IsStyleLoaded())
	assert.Empty(t, f.events.errors())
	assert.Equal(t, []string{
		"uninitialized>prerequisites_checking",
		"prerequisites_checking>resources_acquiring",
		"resources_acquiring>core_initializing",
		"core_initializing>features_activating",
		"features_activating>ready",
	}, f.events.transitions())

	for _, kind := range domain.AllKinds {
		assert.Equal(t, resource.StatusReady, f.core.ResourceState(kind).Status, kind)
	}

	cps := f.core.Checkpoints()
	require.Len(t, cps, 5)
	assert.Equal(t, "ready", cps[4].Label)
	assert.True(t, cps[4].Map.IsStyleLoaded)
	assert.True(t, cps[4].Resources.AllReady())
}

func TestInitialize_ModuleFailure(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{LoadError: errors.New("module unavailable")}, nil)

	ok := f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions())

	assert.False(t, ok)
	assert.Equal(t, lifecycle.StateError, f.core.State())
	errs := f.events.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, PhaseAcquire, errs[0].Phase)
	assert.Contains(t, errs[0].Message, "module unavailable")
	assert.Equal(t, 2, f.module.Loads(), "initial attempt plus one rollback")
	assert.Nil(t, f.core.Map())
}

func TestInitialize_TransientModuleFailureRecovers(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{LoadError: errors.New("flaky cdn")}, nil)
	f.core.Bus().Subscribe(event.TopicResourceUpdate, func(e event.Event) {
		ev := e.(event.ResourceUpdateEvent)
		if ev.Kind == domain.KindModule && ev.Status == "error" {
			f.module.SetLoadError(nil)
		}
	})

	require.True(t, f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions()))
	assert.Equal(t, lifecycle.StateReady, f.core.State())
	assert.Empty(t, f.events.errors())
	assert.Equal(t, 2, f.module.Loads())
}

func TestInitialize_StyleTimeout(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{NeverLoadStyle: true}, func(c *Config) {
		c.StyleLoadTimeout = 30 * time.Millisecond
	})

	ok := f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions())

	assert.False(t, ok)
	assert.Equal(t, lifecycle.StateError, f.core.State())
	errs := f.events.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, PhaseStyle, errs[0].Phase)
	assert.Contains(t, errs[0].Message, "timeout")
	assert.ErrorIs(t, errs[0].Err, domain.ErrStyleLoadTimeout)
}

func TestInitialize_InvalidConfigIsNotRetried(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	container := headless.NewContainer("map", 400, 300)
	container.Detach()

	assert.False(t, f.core.Initialize(context.Background(), container, mapOptions()))
	errs := f.events.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, PhaseConfigure, errs[0].Phase)
	assert.ErrorIs(t, errs[0].Err, domain.ErrInvalidConfig)
	assert.Equal(t, 0, f.module.Loads())
	assert.Equal(t, lifecycle.StateError, f.core.State())
}

func TestInitialize_RetryAfterError(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{LoadError: errors.New("down")}, nil)
	container := headless.NewContainer("map", 400, 300)

	require.False(t, f.core.Initialize(context.Background(), container, mapOptions()))
	f.module.SetLoadError(nil)

	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))
	assert.Equal(t, lifecycle.StateReady, f.core.State())
}

func TestInitialize_ReportsRecoveryExhaustion(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{LoadError: errors.New("down")}, nil)
	container := headless.NewContainer("map", 400, 300)

	for i := 0; i < 4; i++ {
		require.False(t, f.core.Initialize(context.Background(), container, mapOptions()))
	}

	errs := f.events.errors()
	require.Len(t, errs, 4, "one error event per failed Initialize")
	for _, ev := range errs[:3] {
		assert.ErrorIs(t, ev.Err, domain.ErrResourcesNotReady)
		assert.NotErrorIs(t, ev.Err, domain.ErrRecoveryExhausted)
	}
	assert.Equal(t, PhaseAcquire, errs[3].Phase)
	assert.ErrorIs(t, errs[3].Err, domain.ErrResourcesNotReady)
	assert.ErrorIs(t, errs[3].Err, domain.ErrRecoveryExhausted)
	assert.Contains(t, errs[3].Message, "exhausted")
	assert.Equal(t, 7, f.module.Loads(), "three runs with a rollback, then one without")
}

func TestInitialize_ReadyIsIdempotent(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	container := headless.NewContainer("map", 400, 300)

	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))
	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))
	assert.Len(t, f.module.Maps(), 1)
}

func TestCleanup_NeverInitialized(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)

	assert.NotPanics(t, func() {
		f.core.Cleanup(context.Background())
		f.core.Cleanup(context.Background())
	})

	assert.Equal(t, lifecycle.StateUninitialized, f.core.State())
	for _, kind := range domain.AllKinds {
		assert.Equal(t, resource.StatusPending, f.core.ResourceState(kind).Status, kind)
	}
	assert.Nil(t, f.core.Map())
}

func TestCleanup_AfterReady(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	container := headless.NewContainer("map", 400, 300)
	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))
	m := f.module.Maps()[0]
	assert.Equal(t, 3, f.core.events.Bound())

	f.core.Cleanup(context.Background())

	assert.Equal(t, 0, f.core.events.Bound())
	assert.True(t, m.Removed())
	assert.Equal(t, 0, m.ListenerCount())
	assert.Nil(t, f.core.Map())
	assert.False(t, f.core.IsStyleLoaded())
	assert.Equal(t, lifecycle.StateUninitialized, f.core.State())
	assert.Empty(t, f.core.Checkpoints())
	for _, kind := range domain.AllKinds {
		assert.Equal(t, resource.StatusPending, f.core.ResourceState(kind).Status, kind)
	}

	require.True(t, f.core.Initialize(context.Background(), container, mapOptions()))
	assert.Len(t, f.module.Maps(), 2)
}

func TestRuntimeError_ReloadsStyle(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	require.True(t, f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions()))
	m := f.module.Maps()[0]

	m.FailRuntime(errors.New("tile decode failed"))
	f.core.Wait()

	errs := f.events.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "widget", errs[0].Source)
	assert.Equal(t, lifecycle.StateReady, f.core.State())
	assert.True(t, f.core.IsStyleLoaded())
	assert.Same(t, m, f.core.Map())
}

func TestMoveEnd_PublishesLocation(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)
	require.True(t, f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions()))

	f.module.Maps()[0].MoveTo(widget.LngLat{Lng: 2.35, Lat: 48.85}, 9)

	locs := f.events.locations()
	require.Len(t, locs, 1)
	assert.Equal(t, 2.35, locs[0].Lng)
	assert.Equal(t, 48.85, locs[0].Lat)
	assert.Equal(t, 9.0, locs[0].Zoom)
}

func TestReloadStyle(t *testing.T) {
	f := newFixture(t, headless.ModuleConfig{}, nil)

	err := f.core.ReloadStyle(context.Background(), "dark")
	require.ErrorIs(t, err, domain.ErrNoMap)

	require.True(t, f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions()))
	require.NoError(t, f.core.ReloadStyle(context.Background(), "dark"))
	assert.Equal(t, "dark", f.module.Maps()[0].Style())
	assert.True(t, f.core.IsStyleLoaded())
}

func TestNew_RequiresLoader(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MinWidth = -1
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.InitRecoveries = 0
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)
	cfg.InitRecoveries = -1
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)

	cfg = Config{}
	cfg.SetDefaults()
	assert.Equal(t, DefaultStyleLoadTimeout, cfg.StyleLoadTimeout)
	assert.Equal(t, resource.DefaultValidationWindow, cfg.Token.ValidationWindow)
	assert.Equal(t, 1, cfg.InitRecoveries)
	require.NoError(t, cfg.Validate())
}

type trackingPlugin struct {
	name  string
	order *[]string
	cfg   PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	p.cfg = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

func TestPlugins_Order(t *testing.T) {
	var order []string
	a := &trackingPlugin{name: "a", order: &order}
	b := &trackingPlugin{name: "b", order: &order}
	f := newFixture(t, headless.ModuleConfig{}, nil, WithPlugin(a), WithPlugin(b))

	require.True(t, f.core.Initialize(context.Background(), headless.NewContainer("map", 400, 300), mapOptions()))
	require.NotNil(t, a.cfg.Styler)
	require.NoError(t, a.cfg.Styler.ReloadStyle(context.Background(), "satellite"))

	f.core.Cleanup(context.Background())
	f.core.Cleanup(context.Background())

	assert.Equal(t, "init:a,init:b,shutdown:b,shutdown:a", strings.Join(order, ","))
}
