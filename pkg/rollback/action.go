package rollback

import (
	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
)

// Level is a recovery severity. Higher levels discard more state.
type Level int

const (
	LevelStyleReload Level = 1
	LevelReconstruct Level = 2
	LevelReacquire   Level = 3
	LevelReset       Level = 4
)

func (l Level) String() string {
	switch l {
	case LevelStyleReload:
		return "style_reload"
	case LevelReconstruct:
		return "reconstruct"
	case LevelReacquire:
		return "reacquire"
	case LevelReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Action is a derived recovery plan.
type Action struct {
	Level           Level
	Target          lifecycle.State
	RetainResources []domain.ResourceKind
	MaxAttempts     int
}

// Retains reports whether kind survives the action.
func (a Action) Retains(kind domain.ResourceKind) bool {
	for _, k := range a.RetainResources {
		if k == kind {
			return true
		}
	}
	return false
}

// Snapshot is the live state a checkpoint is compared against.
type Snapshot struct {
	State lifecycle.State
	Map   MapFlags
}

// Decide computes the recovery action for cp given the current snapshot.
// Rules are evaluated top to bottom; the first match wins.
func Decide(current Snapshot, cp Checkpoint) Action {
	switch {
	case current.State == lifecycle.StateError:
		return Action{
			Level:       LevelReset,
			Target:      lifecycle.StatePrerequisitesChecking,
			MaxAttempts: 3,
		}
	case !current.Map.IsStyleLoaded && cp.Map.IsStyleLoaded:
		return Action{
			Level:           LevelStyleReload,
			Target:          cp.State,
			RetainResources: []domain.ResourceKind{domain.KindToken, domain.KindModule, domain.KindDOM},
			MaxAttempts:     5,
		}
	case !current.Map.IsInitialized && cp.Map.IsInitialized:
		return Action{
			Level:           LevelReconstruct,
			Target:          lifecycle.StateCoreInitializing,
			RetainResources: []domain.ResourceKind{domain.KindToken, domain.KindModule},
			MaxAttempts:     3,
		}
	default:
		return Action{
			Level:           LevelReacquire,
			Target:          lifecycle.StateResourcesAcquiring,
			RetainResources: []domain.ResourceKind{domain.KindToken},
			MaxAttempts:     3,
		}
	}
}
