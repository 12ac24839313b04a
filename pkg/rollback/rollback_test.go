package rollback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/resource"
)

type fakeWidget struct {
	initialized bool
	styleLoaded bool
	reloadErr   error
	rebuildErr  error
	resetErr    error
	reloads     int
	rebuilds    int
	resets      int
	onReset     func()
}

func (w *fakeWidget) IsInitialized() bool { return w.initialized }
func (w *fakeWidget) IsStyleLoaded() bool { return w.styleLoaded }

func (w *fakeWidget) ReloadStyle(ctx context.Context) error {
	w.reloads++
	if w.reloadErr != nil {
		return w.reloadErr
	}
	w.styleLoaded = true
	return nil
}

func (w *fakeWidget) Reconstruct(ctx context.Context) error {
	w.rebuilds++
	if w.rebuildErr != nil {
		return w.rebuildErr
	}
	w.initialized = true
	return nil
}

func (w *fakeWidget) Reset(ctx context.Context) error {
	w.resets++
	if w.resetErr != nil {
		return w.resetErr
	}
	w.initialized, w.styleLoaded = false, false
	if w.onReset != nil {
		w.onReset()
	}
	return nil
}

type fakeResources struct {
	lc       lifecycle.Manager
	states   map[domain.ResourceKind]resource.Status
	fail     map[domain.ResourceKind]bool
	released []domain.ResourceKind
	acquired []domain.ResourceKind
}

func newFakeResources(lc lifecycle.Manager) *fakeResources {
	return &fakeResources{
		lc:     lc,
		states: map[domain.ResourceKind]resource.Status{},
		fail:   map[domain.ResourceKind]bool{},
	}
}

func (r *fakeResources) readyAll() {
	for _, k := range domain.AllKinds {
		r.states[k] = resource.StatusReady
		r.lc.UpdateResourceState(lifecycle.ResourceUpdate{k: true})
	}
}

func (r *fakeResources) AcquireResource(ctx context.Context, kind domain.ResourceKind) bool {
	r.acquired = append(r.acquired, kind)
	if r.fail[kind] {
		r.states[kind] = resource.StatusError
		return false
	}
	r.states[kind] = resource.StatusReady
	r.lc.UpdateResourceState(lifecycle.ResourceUpdate{kind: true})
	return true
}

func (r *fakeResources) ReleaseResource(kind domain.ResourceKind) {
	r.released = append(r.released, kind)
	r.states[kind] = resource.StatusPending
	r.lc.UpdateResourceState(lifecycle.ResourceUpdate{kind: false})
}

func (r *fakeResources) GetResourceState(kind domain.ResourceKind) resource.State {
	st, ok := r.states[kind]
	if !ok {
		st = resource.StatusPending
	}
	return resource.State{Status: st}
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveRecovery(level Level, outcome string) {
	o.outcomes = append(o.outcomes, fmt.Sprintf("%d:%s", level, outcome))
}

func setup(t *testing.T) (*Manager, *lifecycle.DefaultManager, *fakeResources, *fakeWidget) {
	t.Helper()
	lc := lifecycle.NewManager(nil, nil)
	res := newFakeResources(lc)
	w := &fakeWidget{}
	m := NewManager(lc, res, nil)
	m.SetWidget(w)
	return m, lc, res, w
}

func TestHistory_FIFO(t *testing.T) {
	h := NewHistory(DefaultHistorySize)
	for i := 1; i <= 6; i++ {
		h.Push(Checkpoint{Label: fmt.Sprintf("cp%d", i)})
	}

	all := h.All()
	require.Len(t, all, 5)
	for i, cp := range all {
		assert.Equal(t, fmt.Sprintf("cp%d", i+2), cp.Label)
	}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, "cp6", latest.Label)

	h.Clear()
	_, ok = h.Latest()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_AllIsACopy(t *testing.T) {
	h := NewHistory(2)
	h.Push(Checkpoint{Label: "a"})
	all := h.All()
	all[0].Label = "mutated"

	latest, _ := h.Latest()
	assert.Equal(t, "a", latest.Label)
}

func TestDecide(t *testing.T) {
	loaded := Checkpoint{State: lifecycle.StateReady, Map: MapFlags{IsInitialized: true, IsStyleLoaded: true}}
	built := Checkpoint{State: lifecycle.StateFeaturesActivating, Map: MapFlags{IsInitialized: true}}
	bare := Checkpoint{State: lifecycle.StateResourcesAcquiring}

	tests := []struct {
		name    string
		current Snapshot
		cp      Checkpoint
		level   Level
		target  lifecycle.State
		retain  []domain.ResourceKind
		max     int
	}{
		{
			name:    "error state resets",
			current: Snapshot{State: lifecycle.StateError, Map: MapFlags{IsInitialized: true}},
			cp:      loaded,
			level:   LevelReset,
			target:  lifecycle.StatePrerequisitesChecking,
			max:     3,
		},
		{
			name:    "style lost reloads style",
			current: Snapshot{State: lifecycle.StateReady, Map: MapFlags{IsInitialized: true}},
			cp:      loaded,
			level:   LevelStyleReload,
			target:  lifecycle.StateReady,
			retain:  []domain.ResourceKind{domain.KindToken, domain.KindModule, domain.KindDOM},
			max:     5,
		},
		{
			name:    "widget lost reconstructs",
			current: Snapshot{State: lifecycle.StateFeaturesActivating},
			cp:      built,
			level:   LevelReconstruct,
			target:  lifecycle.StateCoreInitializing,
			retain:  []domain.ResourceKind{domain.KindToken, domain.KindModule},
			max:     3,
		},
		{
			name:    "otherwise reacquires",
			current: Snapshot{State: lifecycle.StateResourcesAcquiring},
			cp:      bare,
			level:   LevelReacquire,
			target:  lifecycle.StateResourcesAcquiring,
			retain:  []domain.ResourceKind{domain.KindToken},
			max:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Decide(tt.current, tt.cp)
			assert.Equal(t, tt.level, a.Level)
			assert.Equal(t, tt.target, a.Target)
			assert.ElementsMatch(t, tt.retain, a.RetainResources)
			assert.Equal(t, tt.max, a.MaxAttempts)
		})
	}
}

func TestDetermineRecoveryAction_StyleReloadTargetsCheckpointState(t *testing.T) {
	m, lc, res, w := setup(t)
	res.readyAll()
	require.NoError(t, lc.Restore(lifecycle.StateFeaturesActivating, "test"))
	w.initialized, w.styleLoaded = true, true

	cp := m.CreateCheckpoint("post-style-load")
	assert.Equal(t, lifecycle.StateFeaturesActivating, cp.State)
	assert.True(t, cp.Resources.AllReady())

	w.styleLoaded = false
	a := m.DetermineRecoveryAction(cp)
	assert.Equal(t, LevelStyleReload, a.Level)
	assert.Equal(t, cp.State, a.Target)
}

func TestRecover_StyleReloadSuccess(t *testing.T) {
	m, lc, res, w := setup(t)
	obs := &recordingObserver{}
	m.SetObserver(obs)
	res.readyAll()
	require.NoError(t, lc.Restore(lifecycle.StateReady, "test"))
	w.initialized, w.styleLoaded = true, true
	cp := m.CreateCheckpoint("ready")

	w.styleLoaded = false
	w.reloadErr = errors.New("transient")
	_, err := m.RecoverToCheckpoint(context.Background(), cp)
	require.Error(t, err)
	assert.Equal(t, 1, m.Attempts(LevelStyleReload))

	w.reloadErr = nil
	a, err := m.RecoverToCheckpoint(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, LevelStyleReload, a.Level)
	assert.Equal(t, 0, m.Attempts(LevelStyleReload))
	assert.Equal(t, lifecycle.StateReady, lc.State())
	assert.Empty(t, res.released)
	assert.Equal(t, []string{"1:failed", "1:success"}, obs.outcomes)
}

func TestRecover_ExhaustionAtEveryLevel(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		max   int
		prep  func(m *Manager, lc *lifecycle.DefaultManager, res *fakeResources, w *fakeWidget) Checkpoint
	}{
		{
			name:  "style reload",
			level: LevelStyleReload,
			max:   5,
			prep: func(m *Manager, lc *lifecycle.DefaultManager, res *fakeResources, w *fakeWidget) Checkpoint {
				res.readyAll()
				w.initialized, w.styleLoaded = true, true
				cp := m.CreateCheckpoint("loaded")
				w.styleLoaded = false
				w.reloadErr = errors.New("style server down")
				return cp
			},
		},
		{
			name:  "reconstruct",
			level: LevelReconstruct,
			max:   3,
			prep: func(m *Manager, lc *lifecycle.DefaultManager, res *fakeResources, w *fakeWidget) Checkpoint {
				res.readyAll()
				w.initialized = true
				cp := m.CreateCheckpoint("map-created")
				w.initialized = false
				w.rebuildErr = errors.New("constructor threw")
				return cp
			},
		},
		{
			name:  "reacquire",
			level: LevelReacquire,
			max:   3,
			prep: func(m *Manager, lc *lifecycle.DefaultManager, res *fakeResources, w *fakeWidget) Checkpoint {
				require.NoError(t, lc.TransitionTo(lifecycle.StatePrerequisitesChecking, "test"))
				require.NoError(t, lc.TransitionTo(lifecycle.StateResourcesAcquiring, "test"))
				cp := m.CreateCheckpoint("post-configuration")
				res.fail[domain.KindModule] = true
				return cp
			},
		},
		{
			name:  "reset",
			level: LevelReset,
			max:   3,
			prep: func(m *Manager, lc *lifecycle.DefaultManager, res *fakeResources, w *fakeWidget) Checkpoint {
				res.readyAll()
				w.initialized = true
				cp := m.CreateCheckpoint("any")
				require.NoError(t, lc.TransitionTo(lifecycle.StateError, "boom"))
				w.resetErr = errors.New("remove failed")
				return cp
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, lc, res, w := setup(t)
			cp := tt.prep(m, lc, res, w)
			before := lc.State()

			for i := 1; i <= tt.max; i++ {
				a, err := m.RecoverToCheckpoint(context.Background(), cp)
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrRecoveryExhausted)
				assert.Equal(t, tt.level, a.Level)
				assert.Equal(t, i, m.Attempts(tt.level))
			}

			calls := w.reloads + w.rebuilds + w.resets
			a, err := m.RecoverToCheckpoint(context.Background(), cp)
			require.ErrorIs(t, err, domain.ErrRecoveryExhausted)
			assert.Equal(t, tt.level, a.Level)
			assert.Equal(t, tt.max, m.Attempts(tt.level))
			assert.Equal(t, calls, w.reloads+w.rebuilds+w.resets, "exhausted level runs no remediation")
			assert.Equal(t, before, lc.State())
		})
	}
}

func TestRecover_ReacquireReleasesUnretained(t *testing.T) {
	m, lc, res, _ := setup(t)
	require.NoError(t, lc.TransitionTo(lifecycle.StatePrerequisitesChecking, "test"))
	require.NoError(t, lc.TransitionTo(lifecycle.StateResourcesAcquiring, "test"))
	res.states[domain.KindToken] = resource.StatusReady
	lc.UpdateResourceState(lifecycle.ResourceUpdate{domain.KindToken: true})
	res.states[domain.KindModule] = resource.StatusError
	cp := m.CreateCheckpoint("post-configuration")

	a, err := m.RecoverToCheckpoint(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, LevelReacquire, a.Level)
	assert.Equal(t, []domain.ResourceKind{domain.KindDOM, domain.KindModule}, res.released)
	assert.Equal(t, []domain.ResourceKind{domain.KindModule, domain.KindDOM}, res.acquired)
	assert.Equal(t, lifecycle.StateCoreInitializing, lc.State(), "all ready inside resources_acquiring advances")
}

func TestRecover_Reconstruct(t *testing.T) {
	m, lc, res, w := setup(t)
	res.readyAll()
	require.NoError(t, lc.Restore(lifecycle.StateFeaturesActivating, "test"))
	w.initialized = true
	cp := m.CreateCheckpoint("post-construction")

	w.initialized = false
	a, err := m.RecoverToCheckpoint(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, LevelReconstruct, a.Level)
	assert.Equal(t, 1, w.rebuilds)
	assert.Equal(t, []domain.ResourceKind{domain.KindDOM}, res.released)
	assert.Equal(t, lifecycle.StateCoreInitializing, lc.State())
}

func TestRecover_FullReset(t *testing.T) {
	m, lc, res, w := setup(t)
	res.readyAll()
	w.initialized = true
	w.onReset = func() {
		for _, k := range domain.ReleaseOrder {
			res.ReleaseResource(k)
		}
		_ = lc.Reset("cleanup")
		m.Reset()
	}
	cp := m.CreateCheckpoint("any")
	require.NoError(t, lc.TransitionTo(lifecycle.StateError, "boom"))

	a, err := m.RecoverToCheckpoint(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, LevelReset, a.Level)
	assert.Equal(t, 1, w.resets)
	assert.Equal(t, lifecycle.StatePrerequisitesChecking, lc.State())
	assert.Empty(t, m.Checkpoints())
	assert.Equal(t, 0, m.Attempts(LevelReset))
}
