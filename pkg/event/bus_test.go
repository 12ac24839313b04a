package event

import (
	"errors"
	"testing"

	"github.com/bft-labs/mapkit/internal/domain"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := NewBus(nil)

	var got Event
	id := bus.Subscribe(TopicStateChange, func(e Event) { got = e })
	if id == "" {
		t.Fatal("Subscribe should return a non-empty ID")
	}

	bus.Publish(NewStateChangeEvent("uninitialized", "prerequisites_checking", "test"))

	sc, ok := got.(StateChangeEvent)
	if !ok {
		t.Fatalf("handler received %T, want StateChangeEvent", got)
	}
	if sc.Current != "prerequisites_checking" || sc.ID() == "" {
		t.Errorf("unexpected event %+v", sc)
	}
}

func TestBus_OrderTopicThenWildcard(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TopicError, func(Event) { order = append(order, "first") })
	bus.Subscribe(TopicError, func(Event) { order = append(order, "second") })

	bus.Publish(NewErrorEvent("test", "", errors.New("x")))

	want := []string{"first", "second", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBus_NoCrossTopicDelivery(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TopicLocationUpdate, func(Event) {
		t.Error("location handler called for resource event")
	})
	bus.Publish(NewResourceUpdateEvent(domain.KindDOM, "ready", ""))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(TopicError, func(Event) { calls++ })
	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe returned true twice")
	}

	bus.Publish(NewErrorEvent("test", "", nil))
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_PanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(TopicError, func(Event) { panic("boom") })
	bus.Subscribe(TopicError, func(Event) { delivered = true })

	bus.Publish(NewErrorEvent("test", "", nil))

	if !delivered {
		t.Error("second handler not called after panic")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TopicError, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d after Clear", bus.SubscriptionCount())
	}
}

func TestNewErrorEvent_Message(t *testing.T) {
	e := NewErrorEvent("initializer", "style", errors.New("style load timeout"))
	if e.Message != "style load timeout" || e.Topic() != TopicError {
		t.Errorf("unexpected event %+v", e)
	}
}
