package lifecycle

import "github.com/bft-labs/mapkit/internal/domain"

// State represents the lifecycle phase of the map widget.
type State int

const (
	StateUninitialized State = iota
	StatePrerequisitesChecking
	StateResourcesAcquiring
	StateCoreInitializing
	StateFeaturesActivating
	StateReady
	StateError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrerequisitesChecking:
		return "prerequisites_checking"
	case StateResourcesAcquiring:
		return "resources_acquiring"
	case StateCoreInitializing:
		return "core_initializing"
	case StateFeaturesActivating:
		return "features_activating"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AllStates lists every lifecycle state.
var AllStates = []State{
	StateUninitialized,
	StatePrerequisitesChecking,
	StateResourcesAcquiring,
	StateCoreInitializing,
	StateFeaturesActivating,
	StateReady,
	StateError,
}

// ResourceFlags tracks which resources the state machine has seen become ready.
type ResourceFlags struct {
	Token  bool `json:"token"`
	Module bool `json:"module"`
	DOM    bool `json:"dom"`
}

// AllReady reports whether all three resources are ready.
func (f ResourceFlags) AllReady() bool {
	return f.Token && f.Module && f.DOM
}

// Get returns the flag for a kind.
func (f ResourceFlags) Get(kind domain.ResourceKind) bool {
	switch kind {
	case domain.KindToken:
		return f.Token
	case domain.KindModule:
		return f.Module
	case domain.KindDOM:
		return f.DOM
	default:
		return false
	}
}

// ResourceUpdate is a partial readiness update keyed by resource kind.
// Kinds absent from the map keep their current flag.
type ResourceUpdate map[domain.ResourceKind]bool

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Manager is the lifecycle state machine of one map widget.
type Manager interface {
	// State returns the current lifecycle state.
	State() State

	// TransitionTo attempts a transition from the legal table.
	TransitionTo(target State, reason string) error

	// UpdateResourceState merges readiness flags and may auto-advance
	// from resources_acquiring to core_initializing.
	UpdateResourceState(update ResourceUpdate)

	// Resources returns the tracked readiness flags.
	Resources() ResourceFlags

	// Restore rewinds to a checkpointed state during rollback.
	Restore(target State, reason string) error

	// Reset returns the machine to uninitialized with no resources tracked.
	Reset(reason string) error
}
