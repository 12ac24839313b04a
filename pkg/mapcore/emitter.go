package mapcore

import (
	"github.com/bft-labs/mapkit/pkg/event"
	"github.com/bft-labs/mapkit/pkg/lifecycle"
)

// busEmitter publishes lifecycle transitions as stateChange events.
type busEmitter struct {
	bus *event.Bus
}

func (e busEmitter) OnStateChange(previous, current lifecycle.State, reason string) {
	e.bus.Publish(event.NewStateChangeEvent(previous.String(), current.String(), reason))
}
