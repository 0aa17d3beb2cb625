package errhandler

import (
	"errors"
	"io"
	"testing"

	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

func newBoundaryHandler(t *testing.T) (*Handler, *present.Recorder) {
	t.Helper()
	rec := present.NewRecorder()
	h := New(Options{
		Renderer: rec,
		Logger:   logger.NewWithWriter(io.Discard, "test"),
	})
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	return h, rec
}

func TestBoundary_TripOnError(t *testing.T) {
	h, rec := newBoundaryHandler(t)
	b := h.NewBoundary(BoundaryOptions{Fallback: "Guide content unavailable.", Source: "guide"})

	cause := errors.New("template render failed")
	calls := 0
	fn := b.Wrap(func() error {
		calls++
		return cause
	})

	if err := fn(); err != cause {
		t.Fatalf("first call = %v, want the original error", err)
	}
	if !b.Tripped() {
		t.Fatal("Tripped() = false after failing call")
	}

	// While tripped, the function is not invoked and the cause stays
	// reachable through the sentinel.
	err := fn()
	if calls != 1 {
		t.Errorf("wrapped function invoked %d times, want 1", calls)
	}
	if !errors.Is(err, ErrBoundaryTripped) {
		t.Errorf("second call error = %v, want ErrBoundaryTripped", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("second call error = %v, want it to wrap the original cause", err)
	}

	// The error was recorded with boundary severity and the fallback
	// surface rendered.
	hist := h.ErrorHistory()
	if len(hist) != 1 {
		t.Fatalf("history has %d records, want 1", len(hist))
	}
	if hist[0].Severity != SeverityBoundaryCaught {
		t.Errorf("record severity = %q, want %q", hist[0].Severity, SeverityBoundaryCaught)
	}

	surfaces := rec.OpenByKind(present.KindBoundary)
	if len(surfaces) != 1 {
		t.Fatalf("open boundary surfaces = %d, want 1", len(surfaces))
	}
	if surfaces[0].Message != "Guide content unavailable." {
		t.Errorf("fallback message = %q, want %q", surfaces[0].Message, "Guide content unavailable.")
	}
}

func TestBoundary_TripOnPanic(t *testing.T) {
	h, _ := newBoundaryHandler(t)
	b := h.NewBoundary(BoundaryOptions{})

	fn := b.Wrap(func() error { panic("renderer exploded") })

	err := fn()
	if err == nil || err.Error() != "renderer exploded" {
		t.Errorf("call = %v, want the panic value as an error", err)
	}
	if !b.Tripped() {
		t.Error("Tripped() = false after panicking call")
	}
}

func TestBoundary_Reset(t *testing.T) {
	h, rec := newBoundaryHandler(t)
	b := h.NewBoundary(BoundaryOptions{})

	fail := true
	fn := b.Wrap(func() error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})

	if err := fn(); err == nil {
		t.Fatal("first call = nil, want error")
	}

	b.Reset()
	if b.Tripped() {
		t.Error("Tripped() = true after Reset")
	}
	if got := len(rec.OpenByKind(present.KindBoundary)); got != 0 {
		t.Errorf("open boundary surfaces after Reset = %d, want 0", got)
	}

	// The next call runs the original function again.
	fail = false
	if err := fn(); err != nil {
		t.Errorf("call after Reset = %v, want nil", err)
	}
}

func TestBoundary_OnTrip(t *testing.T) {
	h, _ := newBoundaryHandler(t)

	var got error
	b := h.NewBoundary(BoundaryOptions{
		OnTrip: func(err error) { got = err },
	})

	cause := errors.New("boom")
	fn := b.Wrap(func() error { return cause })
	_ = fn()

	if got != cause {
		t.Errorf("OnTrip received %v, want the original cause", got)
	}
}

func TestBoundary_OnTripPanicContained(t *testing.T) {
	h, _ := newBoundaryHandler(t)
	b := h.NewBoundary(BoundaryOptions{
		OnTrip: func(err error) { panic("callback bug") },
	})

	fn := b.Wrap(func() error { return errors.New("boom") })

	// A panicking OnTrip must not escape the trip path.
	if err := fn(); err == nil {
		t.Error("call = nil, want the original error despite OnTrip panic")
	}
	if !b.Tripped() {
		t.Error("Tripped() = false, want true despite OnTrip panic")
	}
}
