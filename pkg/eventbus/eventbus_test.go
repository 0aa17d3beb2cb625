package eventbus

import (
	"testing"
)

func TestBus_PublishAndFilter(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	all, err := bus.Subscribe("all", Filter{}, 8)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	errOnly, err := bus.Subscribe("errors", Filter{Types: []string{EventTypeErrorHandled}}, 8)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	bus.Publish(EventTypeErrorHandled, map[string]any{"record_id": "r1"})
	bus.Publish(EventTypeNotificationClosed, map[string]any{"notification_id": "n1"})

	if got := len(all.Events); got != 2 {
		t.Errorf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(errOnly.Events); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}

	ev := <-errOnly.Events
	if ev.Type != EventTypeErrorHandled {
		t.Errorf("event type = %q, want %q", ev.Type, EventTypeErrorHandled)
	}
	if ev.Payload["record_id"] != "r1" {
		t.Errorf("payload record_id = %v, want r1", ev.Payload["record_id"])
	}
}

func TestBus_SequenceIncreases(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	sub, _ := bus.Subscribe("seq", Filter{}, 8)

	bus.Publish(EventTypeErrorHandled, nil)
	bus.Publish(EventTypeErrorHandled, nil)

	first := <-sub.Events
	second := <-sub.Events
	if second.Sequence <= first.Sequence {
		t.Errorf("sequence did not increase: %d then %d", first.Sequence, second.Sequence)
	}
}

func TestBus_FullBufferDropsEvent(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	sub, _ := bus.Subscribe("slow", Filter{}, 1)

	bus.Publish(EventTypeErrorHandled, nil)
	bus.Publish(EventTypeErrorHandled, nil)

	if got := len(sub.Events); got != 1 {
		t.Errorf("buffered events = %d, want 1", got)
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", sub.Dropped())
	}
}

func TestBus_DuplicateSubscriberID(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	if _, err := bus.Subscribe("dup", Filter{}, 1); err != nil {
		t.Fatalf("first Subscribe() error = %v", err)
	}
	if _, err := bus.Subscribe("dup", Filter{}, 1); err == nil {
		t.Error("duplicate Subscribe() should fail")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	defer bus.Close()

	sub, _ := bus.Subscribe("gone", Filter{}, 1)
	bus.Unsubscribe("gone")

	if _, open := <-sub.Events; open {
		t.Error("channel should be closed after Unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", bus.SubscriberCount())
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventTypeErrorHandled, nil)
}

func TestBus_CloseIsTerminal(t *testing.T) {
	bus := New(nil)
	sub, _ := bus.Subscribe("s", Filter{}, 1)

	bus.Close()
	bus.Close() // second close is a no-op

	if _, open := <-sub.Events; open {
		t.Error("subscriber channel should be closed after bus Close")
	}
	if _, err := bus.Subscribe("late", Filter{}, 1); err == nil {
		t.Error("Subscribe() after Close should fail")
	}
}
