package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
)

// transitions is the complete table of legal caller-driven transitions.
var transitions = map[State][]State{
	StateUninitialized:         {StatePrerequisitesChecking, StateError},
	StatePrerequisitesChecking: {StateResourcesAcquiring, StateError},
	StateResourcesAcquiring:    {StateCoreInitializing, StateError},
	StateCoreInitializing:      {StateFeaturesActivating, StateError},
	StateFeaturesActivating:    {StateReady, StateError},
	StateReady:                 {StateError},
	StateError:                 {StatePrerequisitesChecking},
}

// CanTransition reports whether from -> to is in the legal table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultManager implements Manager.
//
// Only one transition may be in flight at a time. A request that arrives
// while another is being applied, including one issued by a state-change
// subscriber, is logged and dropped rather than queued.
type DefaultManager struct {
	mu        sync.RWMutex
	state     State
	resources ResourceFlags
	inFlight  atomic.Bool
	logger    log.Logger
	emitter   EventEmitter
}

// NewManager creates a lifecycle manager in StateUninitialized.
func NewManager(logger log.Logger, emitter EventEmitter) *DefaultManager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &DefaultManager{
		state:   StateUninitialized,
		logger:  logger,
		emitter: emitter,
	}
}

// State returns the current lifecycle state.
func (m *DefaultManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Resources returns the tracked readiness flags.
func (m *DefaultManager) Resources() ResourceFlags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resources
}

// TransitionTo attempts to move to target.
// Returns ErrTransitionInFlight if another transition is running and
// ErrInvalidTransition if the pair is not legal; the state is unchanged in
// both cases. Entering core_initializing without all resources ready forces
// the machine into StateError and returns ErrResourcesNotReady.
func (m *DefaultManager) TransitionTo(target State, reason string) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn("transition dropped, another in flight",
			log.State("to", target),
			log.String("reason", reason),
		)
		return domain.ErrTransitionInFlight
	}
	defer m.inFlight.Store(false)

	return m.apply(target, reason, true)
}

// Restore moves directly to target, bypassing the transition table.
// It is reserved for rollback, which rewinds to a checkpointed state.
// The single-writer rule and the core_initializing resource guard still apply.
func (m *DefaultManager) Restore(target State, reason string) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn("restore dropped, another transition in flight",
			log.State("to", target),
			log.String("reason", reason),
		)
		return domain.ErrTransitionInFlight
	}
	defer m.inFlight.Store(false)

	if m.State() == target {
		return nil
	}
	return m.apply(target, reason, false)
}

// Reset returns the machine to StateUninitialized and clears resource flags.
func (m *DefaultManager) Reset(reason string) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Warn("reset dropped, another transition in flight", log.String("reason", reason))
		return domain.ErrTransitionInFlight
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	prev := m.state
	m.state = StateUninitialized
	m.resources = ResourceFlags{}
	m.mu.Unlock()

	if prev != StateUninitialized {
		m.notify(prev, StateUninitialized, reason)
	}
	return nil
}

// apply performs a transition. The caller holds the in-flight flag.
func (m *DefaultManager) apply(target State, reason string, checkTable bool) error {
	m.mu.Lock()
	prev := m.state

	if checkTable && !CanTransition(prev, target) {
		m.mu.Unlock()
		m.logger.Warn("invalid transition rejected",
			log.State("from", prev),
			log.State("to", target),
			log.String("reason", reason),
		)
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, prev, target)
	}

	if target == StateCoreInitializing && !m.resources.AllReady() {
		flags := m.resources
		m.state = StateError
		m.mu.Unlock()

		err := fmt.Errorf("%w: entering %s with %+v", domain.ErrResourcesNotReady, target, flags)
		m.logger.Error("core initialization guard violated", log.Err(err))
		m.notify(prev, StateError, err.Error())
		return err
	}

	m.state = target
	m.mu.Unlock()

	m.notify(prev, target, reason)
	return nil
}

func (m *DefaultManager) notify(prev, cur State, reason string) {
	m.logger.Info("state transition",
		log.State("from", prev),
		log.State("to", cur),
		log.String("reason", reason),
	)
	if m.emitter != nil {
		m.emitter.OnStateChange(prev, cur, reason)
	}
}

// UpdateResourceState merges a partial readiness update. When all three
// resources read ready while in resources_acquiring, the machine advances to
// core_initializing on its own; this is the only automatic transition.
func (m *DefaultManager) UpdateResourceState(update ResourceUpdate) {
	m.mu.Lock()
	for kind, ready := range update {
		switch kind {
		case domain.KindToken:
			m.resources.Token = ready
		case domain.KindModule:
			m.resources.Module = ready
		case domain.KindDOM:
			m.resources.DOM = ready
		}
	}
	advance := m.state == StateResourcesAcquiring && m.resources.AllReady()
	m.mu.Unlock()

	if advance {
		_ = m.TransitionTo(StateCoreInitializing, "all resources ready")
	}
}

var _ Manager = (*DefaultManager)(nil)
