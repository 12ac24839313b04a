// Package lifecycle provides the state machine that sequences map widget
// bring-up and teardown.
//
// # State Machine
//
// Legal caller-driven transitions:
//   - uninitialized -> prerequisites_checking, error
//   - prerequisites_checking -> resources_acquiring, error
//   - resources_acquiring -> core_initializing, error
//   - core_initializing -> features_activating, error
//   - features_activating -> ready, error
//   - ready -> error
//   - error -> prerequisites_checking
//
// core_initializing may only be entered while token, module and dom are all
// tracked ready; a violation forces the machine into error.
//
// Readiness is pushed in through [DefaultManager.UpdateResourceState]. When
// the last resource reports ready during resources_acquiring the manager
// advances to core_initializing by itself.
//
// Rollback and cleanup use [DefaultManager.Restore] and
// [DefaultManager.Reset], which are not bound by the table above.
//
// # Usage
//
//	states := lifecycle.NewManager(logger, emitter)
//	if err := states.TransitionTo(lifecycle.StatePrerequisitesChecking, "initialize"); err != nil {
//	    return err
//	}
package lifecycle
