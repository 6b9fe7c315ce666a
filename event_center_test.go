package iotterminal

import (
	"errors"
	"iter"
	"testing"
)

func TestShutdown(t *testing.T) {
	t.Run("no subscriptions", func(t *testing.T) {
		ec := NewEventCenter()
		ec.Shutdown()
	})

	t.Run("shutdown cancels subscriptions", func(t *testing.T) {
		ec := NewEventCenter()

		nextA, doneA := iter.Pull2(ec.Subscribe(t.Context(), EventLine))
		defer doneA()

		nextB, doneB := iter.Pull2(ec.Subscribe(t.Context(), EventLine))
		defer doneB()

		ec.Shutdown()

		if _, err, _ := nextA(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}

		if _, err, _ := nextB(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected %v, got %v", ErrShutdown, err)
		}
	})
}

func TestPublish(t *testing.T) {
	ec := NewEventCenter()

	next, done := iter.Pull2(ec.Subscribe(t.Context(), EventLine, EventDropped))
	defer done()

	go func() {
		ec.Publish(EventLine, "a line")
		ec.Publish(EventConnected, "ignored, not subscribed")
		ec.Publish(EventDropped, "")
	}()

	event, err, ok := next()
	if !ok || err != nil {
		t.Fatalf("expected an event, got %v %v", err, ok)
	}
	if event.Kind != EventLine || event.Text != "a line" {
		t.Fatalf("unexpected event %+v", event)
	}

	event, err, ok = next()
	if !ok || err != nil {
		t.Fatalf("expected an event, got %v %v", err, ok)
	}
	if event.Kind != EventDropped {
		t.Fatalf("unexpected event %+v", event)
	}
}
