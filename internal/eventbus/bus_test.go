package eventbus

import "testing"

func TestBus_FanOut(t *testing.T) {
	bus := New[string]()
	a, b := bus.Subscribe(), bus.Subscribe()
	bus.Publish("plan")
	if got := <-a; got != "plan" {
		t.Fatalf("expected plan got %q", got)
	}
	if got := <-b; got != "plan" {
		t.Fatalf("expected plan got %q", got)
	}
	bus.Unsubscribe(a)
	if _, open := <-a; open {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestBus_FullSubscriberDrops(t *testing.T) {
	bus := New[int](WithBuffer(1))
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	if got := <-ch; got != 1 {
		t.Fatalf("expected 1 got %d", got)
	}
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped got %d", got)
	}
}

func TestBus_Close(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	bus.Close()
	if _, open := <-ch; open {
		t.Fatal("expected channel closed")
	}

	// Everything is a no-op on a closed bus.
	bus.Unsubscribe(ch)
	bus.Publish(3)
	bus.Close()
	if _, open := <-bus.Subscribe(); open {
		t.Fatal("expected a closed channel from a closed bus")
	}
}
