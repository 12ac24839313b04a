// Package event defines the lifecycle event bus and the events it carries.
// Producers (state manager, resources, widget bindings, initializer) publish
// without knowing who listens; UI banners, recovery logic and telemetry
// subscribe.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/mapkit/internal/domain"
)

// Topics understood by the bus.
const (
	TopicStateChange    = "stateChange"
	TopicResourceUpdate = "resourceUpdate"
	TopicError          = "error"
	TopicLocationUpdate = "locationUpdate"

	// TopicAll subscribes to every event.
	TopicAll = "*"
)

// Event is the interface that all events must implement.
type Event interface {
	// ID returns a unique identifier for this event instance.
	ID() string

	// Topic returns the topic this event is published on.
	Topic() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	id        string
	topic     string
	timestamp time.Time
}

func (e baseEvent) ID() string           { return e.id }
func (e baseEvent) Topic() string        { return e.topic }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(topic string) baseEvent {
	return baseEvent{
		id:        uuid.New().String(),
		topic:     topic,
		timestamp: time.Now(),
	}
}

// StateChangeEvent is emitted after every applied lifecycle transition.
type StateChangeEvent struct {
	baseEvent
	Previous string
	Current  string
	Reason   string
}

// NewStateChangeEvent creates a StateChangeEvent.
func NewStateChangeEvent(previous, current, reason string) StateChangeEvent {
	return StateChangeEvent{
		baseEvent: newBaseEvent(TopicStateChange),
		Previous:  previous,
		Current:   current,
		Reason:    reason,
	}
}

// ResourceUpdateEvent is emitted whenever a resource changes status.
type ResourceUpdateEvent struct {
	baseEvent
	Kind   domain.ResourceKind
	Status string
	Error  string
}

// NewResourceUpdateEvent creates a ResourceUpdateEvent.
func NewResourceUpdateEvent(kind domain.ResourceKind, status, errMsg string) ResourceUpdateEvent {
	return ResourceUpdateEvent{
		baseEvent: newBaseEvent(TopicResourceUpdate),
		Kind:      kind,
		Status:    status,
		Error:     errMsg,
	}
}

// ErrorEvent reports a failure subscribers may want to surface.
type ErrorEvent struct {
	baseEvent
	// Source names the emitting component, e.g. "initializer" or "widget".
	Source string
	// Phase is the lifecycle phase that failed, if any.
	Phase   string
	Message string
	Err     error
}

// NewErrorEvent creates an ErrorEvent. Message defaults to err.Error().
func NewErrorEvent(source, phase string, err error) ErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{
		baseEvent: newBaseEvent(TopicError),
		Source:    source,
		Phase:     phase,
		Message:   msg,
		Err:       err,
	}
}

// LocationUpdateEvent is emitted when the viewport settles.
type LocationUpdateEvent struct {
	baseEvent
	Lng  float64
	Lat  float64
	Zoom float64
}

// NewLocationUpdateEvent creates a LocationUpdateEvent.
func NewLocationUpdateEvent(lng, lat, zoom float64) LocationUpdateEvent {
	return LocationUpdateEvent{
		baseEvent: newBaseEvent(TopicLocationUpdate),
		Lng:       lng,
		Lat:       lat,
		Zoom:      zoom,
	}
}
