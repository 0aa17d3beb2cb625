// Package present defines renderer-agnostic presentation of error and
// notification surfaces. Strategies build Surface descriptions; a Renderer
// adapter owns the actual output, so the classification/history core stays
// unit-testable without any UI environment.
package present

import (
	"fmt"
	"time"
)

// Kind identifies the presentation surface for a handled error.
type Kind string

const (
	KindToast    Kind = "toast"
	KindModal    Kind = "modal"
	KindInline   Kind = "inline"
	KindBoundary Kind = "boundary"
)

// Level is the visual tone of a surface.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Position is one of the eight logical placement slots for stacked surfaces.
type Position string

const (
	PosTopRight     Position = "top-right"
	PosTopLeft      Position = "top-left"
	PosBottomRight  Position = "bottom-right"
	PosBottomLeft   Position = "bottom-left"
	PosTopCenter    Position = "top-center"
	PosBottomCenter Position = "bottom-center"
)

// NormalizePosition resolves aliases and unknown values to a canonical slot.
func NormalizePosition(pos string) Position {
	switch Position(pos) {
	case PosTopRight, PosTopLeft, PosBottomRight, PosBottomLeft,
		PosTopCenter, PosBottomCenter:
		return Position(pos)
	}
	switch pos {
	case "top":
		return PosTopCenter
	case "bottom":
		return PosBottomCenter
	}
	return PosBottomRight
}

// Action is a user-selectable button on a surface. OnSelect reports whether
// the surface should close after the action runs.
type Action struct {
	ID       string
	Label    string
	OnSelect func() bool
}

// Surface is a renderable description of one error or notification display.
// It carries everything a Renderer needs: content, tone, actions, timing
// and placement. A Surface is a value; rendering returns a Handle that owns
// the display lifecycle.
type Surface struct {
	Kind     Kind
	Level    Level
	Title    string
	Message  string
	Position Position

	// Target anchors an inline surface to a caller-specified element.
	// Empty for all other kinds.
	Target string

	// Duration is the auto-dismiss delay. Zero means sticky.
	Duration time.Duration

	Closable bool
	Actions  []Action
}

// Validate checks surface consistency before rendering.
func (s Surface) Validate() error {
	switch s.Kind {
	case KindToast, KindModal, KindInline, KindBoundary:
	default:
		return fmt.Errorf("unknown surface kind %q", s.Kind)
	}
	if s.Message == "" {
		return fmt.Errorf("surface message must not be empty")
	}
	if s.Kind == KindInline && s.Target == "" {
		return fmt.Errorf("inline surface requires a target")
	}
	return nil
}

// Handle controls a rendered surface.
type Handle interface {
	// Update replaces the surface content in place, without re-creating
	// the display. Used for inline de-duplication and repositioning.
	Update(s Surface) error

	// Close removes the surface from display.
	Close() error
}

// Renderer turns Surface descriptions into visible output.
type Renderer interface {
	Render(s Surface) (Handle, error)
}
