package domain

import "errors"

// Domain errors represent error conditions in the map lifecycle.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidTransition is returned when a lifecycle transition is not in the legal table.
	ErrInvalidTransition = errors.New("mapkit: invalid state transition")

	// ErrTransitionInFlight is returned when a transition is requested while another is running.
	ErrTransitionInFlight = errors.New("mapkit: transition already in flight")

	// ErrResourcesNotReady is returned when core initialization is entered without all resources ready.
	ErrResourcesNotReady = errors.New("mapkit: resources not ready")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("mapkit: invalid configuration")

	// ErrNotConfigured is returned when a resource is acquired before it was configured.
	ErrNotConfigured = errors.New("mapkit: resource not configured")

	// ErrDependencyNotReady is returned when a resource dependency is not ready.
	ErrDependencyNotReady = errors.New("mapkit: dependency not ready")

	// ErrNoCheckpoint is returned when rollback is requested with no checkpoint recorded.
	ErrNoCheckpoint = errors.New("mapkit: no checkpoint")

	// ErrRecoveryExhausted is returned when a recovery level has used all of its attempts.
	ErrRecoveryExhausted = errors.New("mapkit: recovery attempts exhausted")

	// ErrStyleLoadTimeout is returned when the widget does not report style.load in time.
	ErrStyleLoadTimeout = errors.New("mapkit: style load timeout")

	// ErrNoMap is returned when an operation needs a constructed widget and none exists.
	ErrNoMap = errors.New("mapkit: map not initialized")

	// ErrNoToken is returned when no token source yields a candidate.
	ErrNoToken = errors.New("mapkit: no token available")

	// ErrTokenFormat is returned when a token fails the syntactic check.
	ErrTokenFormat = errors.New("mapkit: malformed token")

	// ErrProbeFailed is returned when the provider rejects a token.
	ErrProbeFailed = errors.New("mapkit: token probe failed")

	// ErrContainerDetached is returned when the DOM container is not connected.
	ErrContainerDetached = errors.New("mapkit: container not connected")

	// ErrContainerTooSmall is returned when the container is below the minimum size.
	ErrContainerTooSmall = errors.New("mapkit: container below minimum size")

	// ErrModuleNotReady is returned when the rendering module reports it is not ready.
	ErrModuleNotReady = errors.New("mapkit: module not ready")
)
