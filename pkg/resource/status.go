package resource

import "time"

// Status is the acquisition status of a single resource.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

func (s Status) String() string { return string(s) }

// statusGraph lists the legal status transitions.
var statusGraph = map[Status][]Status{
	StatusPending: {StatusLoading, StatusError},
	StatusLoading: {StatusReady, StatusError},
	StatusReady:   {StatusLoading, StatusError, StatusPending},
	StatusError:   {StatusLoading, StatusPending},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range statusGraph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// State is an observable snapshot of a resource.
type State struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics accumulate per resource until it is released.
type Metrics struct {
	LoadTime       time.Duration `json:"load_time"`
	ValidationTime time.Duration `json:"validation_time"`
	ErrorCount     int           `json:"error_count"`
	LastValidated  time.Time     `json:"last_validated"`
}
