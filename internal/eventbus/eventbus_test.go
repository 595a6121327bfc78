package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewTyped[int]()
	sub := b.Subscribe()
	b.Publish(42)
	select {
	case v := <-sub:
		if v != 42 {
			t.Fatalf("expected 42 got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewTyped[string]()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish("x")
}

func TestCloseStopsDelivery(t *testing.T) {
	b := NewTyped[int]()
	sub := b.Subscribe()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(1)
	if ch := b.Subscribe(); ch == nil {
		t.Fatal("subscribe after close returned nil channel")
	}
}

func TestFullSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := NewTyped[int]()
	_ = b.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}
