// Package errhandler implements the Grimoire error handling runtime:
// process-wide interception of uncaught errors, classification into
// user-facing messages, a bounded rolling history, and dispatch to a
// presentation surface.
package errhandler

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// Severity is the handling category of an error, per the runtime's
// taxonomy. It reflects how the error reached the handler, not its Go type.
type Severity string

const (
	// SeverityUnhandledGlobal marks an uncaught synchronous error.
	SeverityUnhandledGlobal Severity = "unhandled-global"

	// SeverityUnhandledPromise marks an asynchronous failure nobody observed.
	SeverityUnhandledPromise Severity = "unhandled-promise"

	// SeverityCallerReported marks an explicit HandleError invocation.
	SeverityCallerReported Severity = "caller-reported"

	// SeverityBoundaryCaught marks an error trapped by an error boundary.
	SeverityBoundaryCaught Severity = "boundary-caught"
)

// Metadata carries caller-supplied context for one handled error.
type Metadata struct {
	// Source names the subsystem reporting the error.
	Source string

	// Kind is "global", "promise", "boundary" or empty for direct calls.
	Kind string

	// Unhandled marks errors intercepted by a global hook.
	Unhandled bool

	// Code overrides code-based message lookup when the error value
	// itself carries none.
	Code string

	// Target anchors inline presentation to an element selector.
	Target string

	// Context holds arbitrary caller key/value pairs.
	Context map[string]any
}

// Severity derives the handling category from the metadata.
func (m Metadata) Severity() Severity {
	if m.Kind == "boundary" {
		return SeverityBoundaryCaught
	}
	if m.Unhandled {
		if m.Kind == "promise" {
			return SeverityUnhandledPromise
		}
		return SeverityUnhandledGlobal
	}
	return SeverityCallerReported
}

// Record is an immutable snapshot of one handled error. Updates are
// modeled as new records; a Record is never mutated after creation.
type Record struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// Err is the original error value. Opaque; not required to be
	// serializable.
	Err error `json:"-"`

	// Message is the classified, human-readable display message.
	Message string `json:"message"`

	// Severity is the handling category.
	Severity Severity `json:"severity"`

	// Stack is the captured stack trace, when enabled.
	Stack string `json:"stack,omitempty"`

	// Timestamp is the creation moment, used for ordering.
	Timestamp time.Time `json:"timestamp"`

	// Metadata is the caller context plus environment facts captured at
	// creation time.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// newRecord builds a Record from a classified error.
func newRecord(err error, message string, meta Metadata, now time.Time, includeStack bool) Record {
	md := map[string]any{
		"hostname": hostname(),
		"pid":      os.Getpid(),
		"go":       runtime.Version(),
	}
	if meta.Source != "" {
		md["source"] = meta.Source
	}
	if meta.Kind != "" {
		md["kind"] = meta.Kind
	}
	if meta.Unhandled {
		md["unhandled"] = true
	}
	if meta.Target != "" {
		md["target"] = meta.Target
	}
	for k, v := range meta.Context {
		md[k] = v
	}

	rec := Record{
		ID:        uuid.NewString(),
		Err:       err,
		Message:   message,
		Severity:  meta.Severity(),
		Timestamp: now,
		Metadata:  md,
	}

	if includeStack {
		buf := make([]byte, 16*1024)
		n := runtime.Stack(buf, false)
		rec.Stack = string(buf[:n])
	}

	return rec
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// normalizeError coerces any recovered or reported value into an error.
// Global hooks receive arbitrary values; downstream code only sees errors.
func normalizeError(v any) error {
	switch e := v.(type) {
	case nil:
		return fmt.Errorf("unknown error")
	case error:
		return e
	case string:
		return fmt.Errorf("%s", e)
	default:
		return fmt.Errorf("%v", e)
	}
}
