// Package mapkit manages the lifecycle of an embedded map widget.
//
// Example usage:
//
//	core, err := mapkit.New(mapkit.DefaultConfig(),
//	    mapkit.WithLoader(loader),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	core.Bus().Subscribe(mapkit.TopicError, func(e mapkit.Event) {
//	    fmt.Println(e.(mapkit.ErrorEvent).Message)
//	})
//	if core.Initialize(ctx, container, mapkit.Options{Style: style}) {
//	    render(core.Map())
//	}
//	defer core.Cleanup(ctx)
package mapkit

import (
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/mapcore"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// Core is the lifecycle controller of one map widget mount.
type Core = mapcore.Core

// Config holds the controller configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = mapcore.Config

// Option configures optional behavior of Core.
type Option = mapcore.Option

// Options are passed to the rendering module when the map is constructed.
type Options = widget.Options

// State is a lifecycle phase.
type State = lifecycle.State

// Event is published on the controller bus.
type Event = event.Event

// Event payloads.
type (
	StateChangeEvent    = event.StateChangeEvent
	ResourceUpdateEvent = event.ResourceUpdateEvent
	ErrorEvent          = event.ErrorEvent
	LocationUpdateEvent = event.LocationUpdateEvent
)

// Bus topics.
const (
	TopicStateChange    = event.TopicStateChange
	TopicResourceUpdate = event.TopicResourceUpdate
	TopicError          = event.TopicError
	TopicLocationUpdate = event.TopicLocationUpdate
)

// Lifecycle states.
const (
	StateUninitialized         = lifecycle.StateUninitialized
	StatePrerequisitesChecking = lifecycle.StatePrerequisitesChecking
	StateResourcesAcquiring    = lifecycle.StateResourcesAcquiring
	StateCoreInitializing      = lifecycle.StateCoreInitializing
	StateFeaturesActivating    = lifecycle.StateFeaturesActivating
	StateReady                 = lifecycle.StateReady
	StateError                 = lifecycle.StateError
)

// New creates a controller in the uninitialized state.
func New(cfg Config, opts ...Option) (*Core, error) {
	return mapcore.New(cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return mapcore.DefaultConfig()
}

// Re-exported options.
var (
	WithLogger     = mapcore.WithLogger
	WithLoader     = mapcore.WithLoader
	WithHTTPClient = mapcore.WithHTTPClient
	WithEventBus   = mapcore.WithEventBus
	WithTracer     = mapcore.WithTracer
	WithPlugin     = mapcore.WithPlugin
	WithTokenCache = mapcore.WithTokenCache
	WithMetrics    = mapcore.WithMetrics
)
