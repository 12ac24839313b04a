package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/resource"
)

// WidgetController exposes the widget operations recovery needs.
type WidgetController interface {
	// IsInitialized reports whether a map instance exists.
	IsInitialized() bool

	// IsStyleLoaded reports whether the map style is loaded.
	IsStyleLoaded() bool

	// ReloadStyle re-applies the current style and waits for style.load.
	ReloadStyle(ctx context.Context) error

	// Reconstruct destroys the map and builds a new one in the same container.
	Reconstruct(ctx context.Context) error

	// Reset tears everything down as cleanup does.
	Reset(ctx context.Context) error
}

// Resources is the part of the resource manager recovery drives.
type Resources interface {
	AcquireResource(ctx context.Context, kind domain.ResourceKind) bool
	ReleaseResource(kind domain.ResourceKind)
	GetResourceState(kind domain.ResourceKind) resource.State
}

// Observer is notified of every recovery outcome.
type Observer interface {
	ObserveRecovery(level Level, outcome string)
}

// Recovery outcomes reported to an Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
)

// Manager keeps checkpoints and performs recovery against the latest one.
type Manager struct {
	lifecycle lifecycle.Manager
	resources Resources
	widget    WidgetController
	history   *History
	logger    log.Logger
	observer  Observer

	mu       sync.Mutex
	attempts map[Level]int
}

// NewManager creates a rollback manager. The widget controller is attached
// with SetWidget once it exists.
func NewManager(lc lifecycle.Manager, resources Resources, logger log.Logger) *Manager {
	return &Manager{
		lifecycle: lc,
		resources: resources,
		history:   NewHistory(DefaultHistorySize),
		logger:    log.Named(logger, "rollback"),
		attempts:  make(map[Level]int),
	}
}

// SetWidget attaches the widget controller.
func (m *Manager) SetWidget(w WidgetController) { m.widget = w }

// SetObserver attaches a recovery observer.
func (m *Manager) SetObserver(o Observer) { m.observer = o }

// CreateCheckpoint snapshots the current state and appends it to the history.
func (m *Manager) CreateCheckpoint(label string) Checkpoint {
	cur := m.snapshot()
	cp := Checkpoint{
		Label:     label,
		State:     cur.State,
		Resources: m.lifecycle.Resources(),
		Map:       cur.Map,
		Timestamp: time.Now(),
	}
	m.history.Push(cp)
	m.logger.Debug("checkpoint created",
		log.String("label", label),
		log.State("state", cp.State),
		log.Bool("style_loaded", cp.Map.IsStyleLoaded),
	)
	return cp
}

// Latest returns the most recent checkpoint.
func (m *Manager) Latest() (Checkpoint, bool) { return m.history.Latest() }

// Checkpoints returns the retained checkpoints, oldest first.
func (m *Manager) Checkpoints() []Checkpoint { return m.history.All() }

func (m *Manager) snapshot() Snapshot {
	s := Snapshot{State: m.lifecycle.State()}
	if m.widget != nil {
		s.Map = MapFlags{
			IsInitialized: m.widget.IsInitialized(),
			IsStyleLoaded: m.widget.IsStyleLoaded(),
		}
	}
	return s
}

// DetermineRecoveryAction decides how to recover towards cp from the
// current state.
func (m *Manager) DetermineRecoveryAction(cp Checkpoint) Action {
	return Decide(m.snapshot(), cp)
}

// Attempts returns the attempt counter for a level.
func (m *Manager) Attempts(level Level) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[level]
}

// RecoverToCheckpoint runs the recovery action for cp.
//
// It returns ErrRecoveryExhausted without doing anything once the level's
// counter has reached its maximum. Otherwise the counter is incremented, the
// level's remediation runs, and the lifecycle is restored to the action's
// target. The counter is cleared only on success.
func (m *Manager) RecoverToCheckpoint(ctx context.Context, cp Checkpoint) (Action, error) {
	action := m.DetermineRecoveryAction(cp)

	m.mu.Lock()
	n := m.attempts[action.Level]
	if n >= action.MaxAttempts {
		m.mu.Unlock()
		m.observe(action.Level, OutcomeExhausted)
		m.logger.Error("recovery exhausted",
			log.State("level", action.Level),
			log.Int("attempts", n),
		)
		return action, fmt.Errorf("%w: level %d after %d attempts", domain.ErrRecoveryExhausted, action.Level, n)
	}
	m.attempts[action.Level] = n + 1
	m.mu.Unlock()

	m.logger.Info("recovering",
		log.State("level", action.Level),
		log.State("target", action.Target),
		log.String("checkpoint", cp.Label),
		log.Int("attempt", n+1),
	)

	if err := m.remediate(ctx, action); err != nil {
		m.observe(action.Level, OutcomeFailed)
		m.logger.Warn("recovery failed", log.State("level", action.Level), log.Err(err))
		return action, err
	}

	if err := m.restore(action); err != nil {
		m.observe(action.Level, OutcomeFailed)
		m.logger.Warn("recovery failed", log.State("level", action.Level), log.Err(err))
		return action, err
	}

	m.mu.Lock()
	m.attempts[action.Level] = 0
	m.mu.Unlock()

	m.observe(action.Level, OutcomeSuccess)
	m.logger.Info("recovered", log.State("level", action.Level), log.State("state", m.lifecycle.State()))
	return action, nil
}

func (m *Manager) remediate(ctx context.Context, action Action) error {
	if action.Level == LevelReset {
		if m.widget == nil {
			return fmt.Errorf("%w: no widget controller", domain.ErrNoMap)
		}
		return m.widget.Reset(ctx)
	}

	if err := m.reacquire(ctx, action); err != nil {
		return err
	}

	switch action.Level {
	case LevelStyleReload:
		if m.widget == nil {
			return fmt.Errorf("%w: no widget controller", domain.ErrNoMap)
		}
		return m.widget.ReloadStyle(ctx)
	case LevelReconstruct:
		if m.widget == nil {
			return fmt.Errorf("%w: no widget controller", domain.ErrNoMap)
		}
		return m.widget.Reconstruct(ctx)
	}
	return nil
}

// reacquire releases what the action does not retain, then acquires every
// resource that is not ready.
func (m *Manager) reacquire(ctx context.Context, action Action) error {
	for _, kind := range domain.ReleaseOrder {
		if !action.Retains(kind) {
			m.resources.ReleaseResource(kind)
		}
	}
	for _, kind := range domain.AllKinds {
		if m.resources.GetResourceState(kind).Status == resource.StatusReady {
			continue
		}
		if !m.resources.AcquireResource(ctx, kind) {
			st := m.resources.GetResourceState(kind)
			return fmt.Errorf("%w: %s: %s", domain.ErrResourcesNotReady, kind, st.Error)
		}
	}
	return nil
}

func (m *Manager) restore(action Action) error {
	// Re-acquisition inside resources_acquiring may already have taken the
	// automatic step to core_initializing.
	if action.Level == LevelReacquire && m.lifecycle.State() == lifecycle.StateCoreInitializing {
		return nil
	}
	reason := fmt.Sprintf("rollback level %d", action.Level)
	if action.Level == LevelReset && m.lifecycle.State() == lifecycle.StateUninitialized {
		return m.lifecycle.TransitionTo(action.Target, reason)
	}
	return m.lifecycle.Restore(action.Target, reason)
}

// Reset clears checkpoints and attempt counters.
func (m *Manager) Reset() {
	m.history.Clear()
	m.mu.Lock()
	m.attempts = make(map[Level]int)
	m.mu.Unlock()
}

func (m *Manager) observe(level Level, outcome string) {
	if m.observer != nil {
		m.observer.ObserveRecovery(level, outcome)
	}
}
