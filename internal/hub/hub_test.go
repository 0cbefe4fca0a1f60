package hub

import (
	"reflect"
	"sync"
	"testing"
)

type fakeExternal struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (f *fakeExternal) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeExternal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	h := New(nil, nil)

	var order []string
	h.Subscribe("charts", func(Event) { order = append(order, "charts") })
	h.Subscribe("table", func(Event) { order = append(order, "table") })
	h.Subscribe("kpis", func(Event) { order = append(order, "kpis") })

	h.Publish(NewEvent(3, false))

	want := []string{"charts", "table", "kpis"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
}

func TestSubscribe_DuplicateNameIsNoOp(t *testing.T) {
	h := New(nil, nil)

	var first, second int
	h.Subscribe("table", func(Event) { first++ })
	h.Subscribe("table", func(Event) { second++ })

	h.Publish(NewEvent(0, false))

	if first != 1 {
		t.Errorf("original subscriber called %d times, want 1", first)
	}
	if second != 0 {
		t.Errorf("duplicate subscriber called %d times, want 0", second)
	}
	if got := h.Subscribers(); len(got) != 1 {
		t.Errorf("subscribers = %v, want one entry", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := New(nil, nil)

	var calls int
	h.Subscribe("table", func(Event) { calls++ })
	h.Unsubscribe("table")
	h.Unsubscribe("never-registered") // no-op

	h.Publish(NewEvent(0, false))
	if calls != 0 {
		t.Errorf("unsubscribed subscriber called %d times", calls)
	}
}

func TestPublish_PanickingSubscriberIsContained(t *testing.T) {
	h := New(nil, nil)

	var delivered []string
	h.Subscribe("first", func(Event) { delivered = append(delivered, "first") })
	h.Subscribe("broken", func(Event) { panic("render failure") })
	h.Subscribe("last", func(Event) { delivered = append(delivered, "last") })

	h.Publish(NewEvent(1, false))

	want := []string{"first", "last"}
	if !reflect.DeepEqual(delivered, want) {
		t.Errorf("delivered = %v, want %v", delivered, want)
	}
}

func TestPublish_ForwardsToExternalChannel(t *testing.T) {
	ext := &fakeExternal{}
	h := New(ext, nil)

	ev := NewEvent(7, true)
	h.Publish(ev)

	if len(ext.events) != 1 {
		t.Fatalf("external events = %d, want 1", len(ext.events))
	}
	if ext.events[0].Count != 7 || !ext.events[0].FromCache {
		t.Errorf("forwarded event = %+v", ext.events[0])
	}
}

func TestPublish_NilExternalIsSkipped(t *testing.T) {
	h := New(nil, nil)
	h.Subscribe("table", func(Event) {})
	h.Publish(NewEvent(0, false)) // must not panic
}

func TestClose_ShutsDownExternalOnce(t *testing.T) {
	ext := &fakeExternal{}
	h := New(ext, nil)

	h.Close()
	if !ext.closed {
		t.Error("external channel not closed")
	}

	// After Close the channel is detached; publish must not panic.
	h.Publish(NewEvent(0, false))
	if len(ext.events) != 0 {
		t.Errorf("external received %d events after Close", len(ext.events))
	}
	h.Close() // idempotent
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(5, true)
	b := NewEvent(5, true)

	if a.ID == b.ID {
		t.Error("event IDs must be unique")
	}
	if a.Count != 5 || !a.FromCache {
		t.Errorf("event = %+v", a)
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}
