package errhandler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/grimoire-docs/grimoire/pkg/present"
)

// ErrBoundaryTripped is returned by a wrapped function while its boundary
// is tripped. The original failure is wrapped and reachable via errors.Is
// and errors.Unwrap.
var ErrBoundaryTripped = errors.New("error boundary tripped")

// BoundaryOptions configures an error boundary.
type BoundaryOptions struct {
	// Fallback is the static message rendered once the boundary trips.
	Fallback string

	// Source tags records produced by this boundary.
	Source string

	// OnTrip is invoked once per trip, after the error is handled.
	OnTrip func(err error)
}

// Boundary is a latch around a fallible function. Once a wrapped call
// fails, subsequent calls short-circuit to the fallback without invoking
// the function again, until Reset. This models a latch, not a retry loop.
type Boundary struct {
	handler *Handler
	opts    BoundaryOptions

	mu      sync.Mutex
	tripped bool
	cause   error
	handle  present.Handle
}

// NewBoundary creates a boundary attached to this handler.
func (h *Handler) NewBoundary(opts BoundaryOptions) *Boundary {
	if opts.Fallback == "" {
		opts.Fallback = "This content is unavailable."
	}
	return &Boundary{handler: h, opts: opts}
}

// Wrap returns a function with the same shape as fn. Failures (returned
// errors or panics) trip the boundary; while tripped, calls return
// ErrBoundaryTripped wrapping the original cause without invoking fn.
func (b *Boundary) Wrap(fn func() error) func() error {
	return func() error {
		b.mu.Lock()
		if b.tripped {
			cause := b.cause
			b.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrBoundaryTripped, cause)
		}
		b.mu.Unlock()

		err := b.call(fn)
		if err != nil {
			b.trip(err)
			return err
		}
		return nil
	}
}

// call runs fn, converting a panic into an error.
func (b *Boundary) call(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = normalizeError(v)
		}
	}()
	return fn()
}

// trip latches the boundary, reports the error and renders the fallback.
func (b *Boundary) trip(err error) {
	b.mu.Lock()
	if b.tripped {
		b.mu.Unlock()
		return
	}
	b.tripped = true
	b.cause = err
	b.mu.Unlock()

	boundaryTrips.Inc()

	b.handler.HandleError(err, Metadata{
		Source:    b.opts.Source,
		Kind:      "boundary",
		Unhandled: false,
	})

	// Render the static fallback surface. No timers.
	strat := present.BoundaryStrategy{Fallback: b.opts.Fallback}
	surface := strat.Build(present.Request{
		Message: b.opts.Fallback,
		Level:   present.LevelWarning,
	})
	if handle, renderErr := b.handler.render(surface); renderErr == nil {
		b.mu.Lock()
		b.handle = handle
		b.mu.Unlock()
	}

	if b.opts.OnTrip != nil {
		func() {
			defer func() {
				if v := recover(); v != nil {
					b.handler.log.Error("boundary OnTrip callback panicked", "panic", v)
				}
			}()
			b.opts.OnTrip(err)
		}()
	}
}

// Tripped reports whether the boundary is currently latched.
func (b *Boundary) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reset re-arms the boundary and removes the fallback surface. The next
// wrapped call invokes the original function again.
func (b *Boundary) Reset() {
	b.mu.Lock()
	handle := b.handle
	b.tripped = false
	b.cause = nil
	b.handle = nil
	b.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
}
