package present

import (
	"fmt"
	"sync"
)

// Recorder is an in-memory Renderer that records every rendered surface.
// It backs tests and headless deployments where no UI shell is attached.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]Surface
	order   []int
	closed  int
	updates int

	// FailNext makes the next Render call return an error, for testing
	// caller fallback paths.
	FailNext bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{entries: make(map[int]Surface)}
}

// Render records the surface and returns a handle controlling it.
func (r *Recorder) Render(s Surface) (Handle, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailNext {
		r.FailNext = false
		return nil, fmt.Errorf("render failed")
	}

	id := r.nextID
	r.nextID++
	r.entries[id] = s
	r.order = append(r.order, id)

	return &recorderHandle{rec: r, id: id}, nil
}

// Open returns the currently displayed surfaces in render order.
func (r *Recorder) Open() []Surface {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open []Surface
	for _, id := range r.order {
		if s, ok := r.entries[id]; ok {
			open = append(open, s)
		}
	}
	return open
}

// OpenByKind returns the displayed surfaces of one kind.
func (r *Recorder) OpenByKind(kind Kind) []Surface {
	var out []Surface
	for _, s := range r.Open() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ClosedCount returns how many surfaces have been closed.
func (r *Recorder) ClosedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// UpdateCount returns how many in-place updates handles received.
func (r *Recorder) UpdateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

type recorderHandle struct {
	rec *Recorder
	id  int
}

func (h *recorderHandle) Update(s Surface) error {
	if err := s.Validate(); err != nil {
		return err
	}

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()

	if _, ok := h.rec.entries[h.id]; !ok {
		return fmt.Errorf("surface already closed")
	}
	h.rec.entries[h.id] = s
	h.rec.updates++
	return nil
}

func (h *recorderHandle) Close() error {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()

	if _, ok := h.rec.entries[h.id]; !ok {
		return nil
	}
	delete(h.rec.entries, h.id)
	h.rec.closed++
	return nil
}
