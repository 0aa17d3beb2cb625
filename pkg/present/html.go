package present

import (
	"fmt"
	"html"
	"strings"
	"sync"
)

// HTMLRenderer renders surfaces as HTML fragments for the web shell. It
// does not push anything itself; the caller observes fragments through the
// OnFragment callback (typically bridged onto the event stream).
type HTMLRenderer struct {
	mu     sync.Mutex
	nextID int

	// OnFragment receives every produced fragment with the surface ID and
	// a lifecycle verb: "show", "update" or "close".
	OnFragment func(id string, verb string, fragment string)
}

// NewHTMLRenderer creates a renderer delivering fragments to onFragment.
func NewHTMLRenderer(onFragment func(id, verb, fragment string)) *HTMLRenderer {
	return &HTMLRenderer{OnFragment: onFragment}
}

// Render produces a fragment for the surface and emits a "show" event.
func (r *HTMLRenderer) Render(s Surface) (Handle, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	id := fmt.Sprintf("grimoire-surface-%d", r.nextID)
	r.nextID++
	r.mu.Unlock()

	r.emit(id, "show", Fragment(id, s))
	return &htmlHandle{rec: r, id: id}, nil
}

func (r *HTMLRenderer) emit(id, verb, fragment string) {
	if r.OnFragment != nil {
		r.OnFragment(id, verb, fragment)
	}
}

// Fragment builds the HTML fragment for a surface. Exported so the web
// shell can re-render snapshots from history records.
func Fragment(id string, s Surface) string {
	var sb strings.Builder

	classes := fmt.Sprintf("grimoire-%s grimoire-%s", s.Kind, s.Level)
	fmt.Fprintf(&sb, `<div id=%q class=%q role="alert"`, id, classes)
	if s.Target != "" {
		fmt.Fprintf(&sb, ` data-target=%q`, s.Target)
	}
	if s.Position != "" {
		fmt.Fprintf(&sb, ` data-position=%q`, string(s.Position))
	}
	sb.WriteString(">")

	if s.Title != "" {
		fmt.Fprintf(&sb, `<h2 class="grimoire-title">%s</h2>`, html.EscapeString(s.Title))
	}
	fmt.Fprintf(&sb, `<p class="grimoire-message">%s</p>`, html.EscapeString(s.Message))

	if len(s.Actions) > 0 {
		sb.WriteString(`<div class="grimoire-actions">`)
		for _, a := range s.Actions {
			fmt.Fprintf(&sb, `<button data-action=%q>%s</button>`,
				a.ID, html.EscapeString(a.Label))
		}
		sb.WriteString(`</div>`)
	}

	if s.Closable {
		sb.WriteString(`<button class="grimoire-close" aria-label="Close">&times;</button>`)
	}

	sb.WriteString("</div>")
	return sb.String()
}

type htmlHandle struct {
	rec    *HTMLRenderer
	id     string
	mu     sync.Mutex
	closed bool
}

func (h *htmlHandle) Update(s Surface) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("surface already closed")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	h.rec.emit(h.id, "update", Fragment(h.id, s))
	return nil
}

func (h *htmlHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.rec.emit(h.id, "close", "")
	return nil
}
