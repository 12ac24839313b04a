package mapcore

import (
	"sync"

	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
	"github.com/bft-labs/mapkit/pkg/log"
	"github.com/bft-labs/mapkit/pkg/rollback"
	"github.com/bft-labs/mapkit/pkg/widget"
)

// Events binds widget-native callbacks to bus events and checkpoints.
//
//   - style.load creates a checkpoint
//   - error is published and, once the map is ready, triggers recovery
//   - moveend is published as a locationUpdate
//
// Errors raised before ready are left to the initializer, which is waiting
// on the same map and reports them.
type Events struct {
	bus       *event.Bus
	lifecycle lifecycle.Manager
	rollback  *rollback.Manager
	logger    log.Logger

	// onRuntimeError is called for widget errors while ready.
	onRuntimeError func(err error)

	mu   sync.Mutex
	offs []func()
}

// Attach binds to m, replacing any previous bindings.
func (e *Events) Attach(m widget.Map) {
	e.Detach()

	offs := []func(){
		m.On(widget.EventStyleLoad, e.onStyleLoad),
		m.On(widget.EventError, e.onError),
		m.On(widget.EventMoveEnd, e.onMoveEnd),
	}

	e.mu.Lock()
	e.offs = offs
	e.mu.Unlock()
}

// Detach removes every binding. Safe to call repeatedly.
func (e *Events) Detach() {
	e.mu.Lock()
	offs := e.offs
	e.offs = nil
	e.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// Bound returns the number of active bindings.
func (e *Events) Bound() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.offs)
}

func (e *Events) onStyleLoad(widget.Event) {
	e.rollback.CreateCheckpoint(widget.EventStyleLoad)
}

func (e *Events) onError(ev widget.Event) {
	state := e.lifecycle.State()
	if state != lifecycle.StateReady {
		e.logger.Debug("widget error during bring-up", log.State("state", state), log.Err(ev.Err))
		return
	}

	e.logger.Error("widget runtime error", log.Err(ev.Err))
	e.bus.Publish(event.NewErrorEvent("widget", state.String(), ev.Err))
	if e.onRuntimeError != nil {
		e.onRuntimeError(ev.Err)
	}
}

func (e *Events) onMoveEnd(ev widget.Event) {
	e.bus.Publish(event.NewLocationUpdateEvent(ev.Center.Lng, ev.Center.Lat, ev.Zoom))
}
