package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	vid := "V1"
	ch := b.Subscribe(vid)

	evt := SSEEvent{Type: "operation.started", Data: map[string]any{"x": 1}}
	b.Publish(vid, evt)
	b.Publish("other", SSEEvent{Type: "ignored"})

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(vid, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// second unsubscribe and publish after close must not panic
	b.Unsubscribe(vid, ch)
	b.Publish(vid, evt)
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("V1")
	defer b.Unsubscribe("V1", ch)
	for i := 0; i < 20; i++ {
		b.Publish("V1", SSEEvent{Type: "operation.updated"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected a full buffer, got %d/%d", len(ch), cap(ch))
	}
}
