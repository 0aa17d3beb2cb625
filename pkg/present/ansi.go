package present

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ANSIRenderer renders surfaces as styled boxes on a terminal writer. Used
// by grimoired when no web shell is attached, so handled errors stay
// visible during local development.
type ANSIRenderer struct {
	mu  sync.Mutex
	out io.Writer

	toastStyle  lipgloss.Style
	modalStyle  lipgloss.Style
	levelStyles map[Level]lipgloss.Style
}

// NewANSIRenderer creates a renderer writing to out.
func NewANSIRenderer(out io.Writer) *ANSIRenderer {
	base := lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder())

	return &ANSIRenderer{
		out:        out,
		toastStyle: base,
		modalStyle: base.Border(lipgloss.DoubleBorder()).Padding(1, 2),
		levelStyles: map[Level]lipgloss.Style{
			LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
			LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
			LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
			LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
}

// Render writes the surface to the terminal. Terminal output has no
// retained display, so Update re-renders and Close prints a dismissal line
// for modals only.
func (r *ANSIRenderer) Render(s Surface) (Handle, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := r.write(s); err != nil {
		return nil, err
	}
	return &ansiHandle{rec: r, kind: s.Kind}, nil
}

func (r *ANSIRenderer) write(s Surface) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	level := r.levelStyles[s.Level]

	var body string
	if s.Title != "" {
		body = level.Bold(true).Render(s.Title) + "\n" + s.Message
	} else {
		body = level.Render(string(s.Level)) + " " + s.Message
	}

	for _, a := range s.Actions {
		body += "\n" + lipgloss.NewStyle().Faint(true).Render("["+a.Label+"]")
	}

	style := r.toastStyle
	if s.Kind == KindModal {
		style = r.modalStyle
	}

	_, err := fmt.Fprintln(r.out, style.BorderForeground(levelColor(s.Level)).Render(body))
	return err
}

func levelColor(l Level) lipgloss.Color {
	switch l {
	case LevelSuccess:
		return lipgloss.Color("10")
	case LevelWarning:
		return lipgloss.Color("11")
	case LevelError:
		return lipgloss.Color("9")
	default:
		return lipgloss.Color("12")
	}
}

type ansiHandle struct {
	rec  *ANSIRenderer
	kind Kind

	mu     sync.Mutex
	closed bool
}

func (h *ansiHandle) Update(s Surface) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("surface already closed")
	}
	if err := s.Validate(); err != nil {
		return err
	}
	return h.rec.write(s)
}

func (h *ansiHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	if h.kind == KindModal {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		_, err := fmt.Fprintln(h.rec.out, lipgloss.NewStyle().Faint(true).Render("modal dismissed"))
		return err
	}
	return nil
}
