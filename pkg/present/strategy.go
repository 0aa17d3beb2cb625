package present

import "time"

// Request carries the classified error content a strategy turns into a
// Surface. Strategies are pure: same request, same surface.
type Request struct {
	Message string
	Level   Level

	// Target is the inline anchor, when the caller supplied one.
	Target string

	Actions []Action
}

// Strategy builds a Surface for one presentation kind.
type Strategy interface {
	Kind() Kind
	Build(req Request) Surface
}

// ToastStrategy produces ephemeral, auto-dismissing corner surfaces.
// Multiple toasts may coexist.
type ToastStrategy struct {
	Duration time.Duration
	Position Position
}

func (t ToastStrategy) Kind() Kind { return KindToast }

func (t ToastStrategy) Build(req Request) Surface {
	pos := t.Position
	if pos == "" {
		pos = PosBottomRight
	}
	return Surface{
		Kind:     KindToast,
		Level:    req.Level,
		Message:  req.Message,
		Position: pos,
		Duration: t.Duration,
		Closable: true,
		Actions:  req.Actions,
	}
}

// ModalStrategy produces a blocking overlay. No auto-dismiss; dismissed by
// explicit close or, when OfferReload is set, a reload action.
type ModalStrategy struct {
	Title       string
	OfferReload bool
	OnReload    func() bool
}

func (m ModalStrategy) Kind() Kind { return KindModal }

func (m ModalStrategy) Build(req Request) Surface {
	title := m.Title
	if title == "" {
		title = "Something went wrong"
	}

	actions := req.Actions
	if m.OfferReload {
		onReload := m.OnReload
		if onReload == nil {
			onReload = func() bool { return true }
		}
		actions = append(actions, Action{
			ID:       "reload",
			Label:    "Reload",
			OnSelect: onReload,
		})
	}

	return Surface{
		Kind:     KindModal,
		Level:    req.Level,
		Title:    title,
		Message:  req.Message,
		Closable: true,
		Actions:  actions,
	}
}

// InlineStrategy produces a surface anchored next to a target element.
type InlineStrategy struct{}

func (InlineStrategy) Kind() Kind { return KindInline }

func (InlineStrategy) Build(req Request) Surface {
	return Surface{
		Kind:     KindInline,
		Level:    req.Level,
		Message:  req.Message,
		Target:   req.Target,
		Closable: true,
	}
}

// BoundaryStrategy produces the static fallback surface shown by a tripped
// error boundary. No timers, no actions.
type BoundaryStrategy struct {
	Fallback string
}

func (BoundaryStrategy) Kind() Kind { return KindBoundary }

func (b BoundaryStrategy) Build(req Request) Surface {
	message := b.Fallback
	if message == "" {
		message = req.Message
	}
	return Surface{
		Kind:    KindBoundary,
		Level:   LevelWarning,
		Message: message,
	}
}
