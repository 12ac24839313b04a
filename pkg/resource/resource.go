package resource

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bft-labs/mapkit/internal/domain"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/token"
)

// Resource is the uniform contract of the three acquirable prerequisites.
// The set of implementations is closed: *TokenResource, *ModuleResource and
// *DOMResource.
//
// Acquire and Validate never return errors. Failures are recorded as an
// error status whose reason is available from State().Error.
type Resource interface {
	Kind() domain.ResourceKind
	Acquire(ctx context.Context) bool
	Validate(ctx context.Context, force bool) bool
	Release()
	State() State
	Metrics() Metrics

	base() *tracker
}

// notifyFunc receives every applied status change.
type notifyFunc func(kind domain.ResourceKind, s State)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("maptoken", func(fl validator.FieldLevel) bool {
		return token.ValidateFormat(fl.Field().String()) == nil
	})
	return v
}

// tracker holds the status and metrics shared by every resource.
type tracker struct {
	kind   domain.ResourceKind
	logger log.Logger
	notify notifyFunc

	mu      sync.RWMutex
	state   State
	metrics Metrics
}

func newTracker(kind domain.ResourceKind, logger log.Logger) *tracker {
	return &tracker{
		kind:   kind,
		logger: log.Named(logger, "resource"),
		state:  State{Status: StatusPending, Timestamp: time.Now()},
	}
}

func (t *tracker) base() *tracker { return t }

func (t *tracker) Kind() domain.ResourceKind { return t.kind }

func (t *tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *tracker) Metrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

func (t *tracker) status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Status
}

// set applies a status change if the graph allows it.
func (t *tracker) set(to Status, reason string) bool {
	t.mu.Lock()
	from := t.state.Status
	if !CanTransition(from, to) {
		t.mu.Unlock()
		t.logger.Warn("illegal resource status transition",
			log.Kind(t.kind),
			log.State("from", from),
			log.State("to", to),
		)
		return false
	}
	t.state = State{Status: to, Error: reason, Timestamp: time.Now()}
	if to == StatusError {
		t.metrics.ErrorCount++
	}
	s := t.state
	t.mu.Unlock()

	t.emit(s)
	return true
}

// fail records err as an error status.
func (t *tracker) fail(err error) bool {
	t.logger.Error("resource failed", log.Kind(t.kind), log.Err(err))
	t.set(StatusError, err.Error())
	return false
}

// reset returns to pending regardless of the current status and clears metrics.
func (t *tracker) reset() {
	t.mu.Lock()
	t.state = State{Status: StatusPending, Timestamp: time.Now()}
	t.metrics = Metrics{}
	s := t.state
	t.mu.Unlock()

	t.emit(s)
}

func (t *tracker) recordLoad(d time.Duration) {
	t.mu.Lock()
	t.metrics.LoadTime = d
	t.mu.Unlock()
}

func (t *tracker) recordValidation(d time.Duration, at time.Time) {
	t.mu.Lock()
	t.metrics.ValidationTime = d
	t.metrics.LastValidated = at
	t.mu.Unlock()
}

func (t *tracker) emit(s State) {
	if t.notify != nil {
		t.notify(t.kind, s)
	}
}
