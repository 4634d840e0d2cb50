package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged, Tenant: "t1", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStatusChanged)
		}
		if evt.Tenant != "t1" {
			t.Errorf("got tenant %q, want t1", evt.Tenant)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("contacts.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged})
	b.Publish(Event{Kind: KindContactsSynced})

	select {
	case evt := <-ch:
		if evt.Kind != KindContactsSynced {
			t.Errorf("got kind %q, want %s", evt.Kind, KindContactsSynced)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTenantFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeTenant("session.", "t2", 10)
	defer unsub()

	b.Publish(Event{Kind: KindSessionUpdated, Tenant: "t1"})
	b.Publish(Event{Kind: KindSessionUpdated, Tenant: "t2"})

	evt := <-ch
	if evt.Tenant != "t2" {
		t.Errorf("got tenant %q, want t2", evt.Tenant)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event for tenant %q", evt.Tenant)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: KindStatusChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
