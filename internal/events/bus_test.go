package events

import "testing"

func TestBus_PublishAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	unsubscribe := bus.Subscribe(DataChanged, func(e Event) {
		got = append(got, e)
	})
	bus.Subscribe(DataLoaded, func(e Event) {
		t.Errorf("DataLoaded handler must not receive %v", e)
	})

	bus.Publish(Event{Topic: DataChanged, Table: "categories", Op: OpCreate, IDs: []string{"cat-000001"}})
	unsubscribe()
	bus.Publish(Event{Topic: DataChanged, Table: "categories", Op: OpDelete})

	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Table != "categories" || got[0].Op != OpCreate {
		t.Errorf("Unexpected event: %+v", got[0])
	}
}

func TestBus_HandlerMaySubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Subscribe(RefreshRequested, func(Event) {
		calls++
		bus.Subscribe(RefreshRequested, func(Event) { calls++ })
	})

	bus.Publish(Event{Topic: RefreshRequested})
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestBus_NilIsSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Topic: DataLoaded})
}
