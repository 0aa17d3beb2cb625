// Package notify implements the Grimoire notification stack: a bounded set
// of concurrently visible toasts with countdown dismissal, hover pause and
// per-notification actions, rendered through a pluggable surface renderer.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grimoire-docs/grimoire/pkg/clock"
	"github.com/grimoire-docs/grimoire/pkg/eventbus"
	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

// DefaultMaxVisible bounds concurrently visible notifications when no
// limit is configured.
const DefaultMaxVisible = 5

// DefaultDuration is the auto-dismiss delay when a request specifies none.
const DefaultDuration = 5 * time.Second

// Close reasons, used in events and metrics.
const (
	ReasonDismissed = "dismissed" // explicit Close call
	ReasonExpired   = "expired"   // countdown ran out
	ReasonEvicted   = "evicted"   // pushed out by a newer notification
	ReasonCleared   = "cleared"   // ClearAll or Destroy
	ReasonAction    = "action"    // closed by an action callback
)

// Request describes one notification to display.
type Request struct {
	Message string
	Level   present.Level

	// Duration before auto-dismissal. Zero means DefaultDuration.
	Duration time.Duration

	// Sticky disables auto-dismissal; the notification stays until
	// closed, evicted or cleared.
	Sticky bool

	Actions []present.Action

	// OnShow is invoked once the notification is visible.
	OnShow func(id string)

	// OnClose is invoked when the notification is removed, with the
	// close reason. Called outside the system's lock, so it may call
	// back into the System.
	OnClose func(id, reason string)
}

// Notification is a read-only view of one visible notification.
type Notification struct {
	ID        string
	Message   string
	Level     present.Level
	Duration  time.Duration
	Sticky    bool
	CreatedAt time.Time
	Paused    bool
}

// Options configures a System.
type Options struct {
	// MaxVisible bounds concurrently visible notifications. Once reached,
	// showing another evicts the oldest. Defaults to DefaultMaxVisible.
	MaxVisible int

	// Position places the notification stack.
	Position present.Position

	// PauseOnHover makes HoverStart pause every countdown.
	PauseOnHover bool

	// DefaultDuration overrides the package default dismiss delay.
	DefaultDuration time.Duration

	// Renderer displays notification surfaces. Defaults to a
	// present.Recorder.
	Renderer present.Renderer

	// Clock drives countdowns. Defaults to the system clock.
	Clock clock.Clock

	// Logger receives structured logs. Defaults to the global logger.
	Logger *logger.Logger

	// Bus, when set, receives notification lifecycle events.
	Bus *eventbus.Bus
}

// entry is the mutable state behind one visible notification.
type entry struct {
	n       Notification
	surface present.Surface
	actions []present.Action
	onClose func(id, reason string)
	handle  present.Handle

	timer     clock.Timer
	deadline  time.Time
	remaining time.Duration
	paused    bool
}

// System manages the visible notification stack. All methods are safe for
// concurrent use. It satisfies the error handler's notification sink.
type System struct {
	opts Options
	clk  clock.Clock
	log  *logger.Logger
	bus  *eventbus.Bus

	mu        sync.Mutex
	position  present.Position
	entries   map[string]*entry
	order     []string
	destroyed bool
}

// NewSystem creates a notification system.
func NewSystem(opts Options) *System {
	if opts.MaxVisible <= 0 {
		opts.MaxVisible = DefaultMaxVisible
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Renderer == nil {
		opts.Renderer = present.NewRecorder()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}

	return &System{
		opts:     opts,
		clk:      opts.Clock,
		log:      opts.Logger.WithComponent("notify"),
		bus:      opts.Bus,
		position: present.NormalizePosition(string(opts.Position)),
		entries:  make(map[string]*entry),
	}
}

// Show displays a notification and returns its ID. When the visible bound
// is reached, the oldest notification is evicted first.
func (s *System) Show(req Request) (string, error) {
	if req.Message == "" {
		return "", fmt.Errorf("notification message is empty")
	}

	duration := req.Duration
	if duration <= 0 {
		duration = s.opts.DefaultDuration
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return "", fmt.Errorf("notification system destroyed")
	}

	position := s.position
	s.mu.Unlock()

	strat := present.ToastStrategy{Duration: duration, Position: position}
	surface := strat.Build(present.Request{
		Message: req.Message,
		Level:   req.Level,
		Actions: req.Actions,
	})

	handle, err := s.opts.Renderer.Render(surface)
	if err != nil {
		return "", fmt.Errorf("failed to render notification: %w", err)
	}

	id := uuid.NewString()
	e := &entry{
		n: Notification{
			ID:        id,
			Message:   req.Message,
			Level:     req.Level,
			Duration:  duration,
			Sticky:    req.Sticky,
			CreatedAt: s.clk.Now(),
		},
		surface: surface,
		actions: req.Actions,
		onClose: req.OnClose,
		handle:  handle,
	}

	var closed []func()
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		_ = handle.Close()
		return "", fmt.Errorf("notification system destroyed")
	}
	s.entries[id] = e
	s.order = append(s.order, id)

	// FIFO eviction: the oldest notifications make room for the newcomer.
	for len(s.order) > s.opts.MaxVisible {
		if cb := s.removeLocked(s.order[0], ReasonEvicted); cb != nil {
			closed = append(closed, cb)
		}
	}

	if !req.Sticky {
		e.deadline = s.clk.Now().Add(duration)
		e.timer = s.clk.AfterFunc(duration, func() { s.expire(id) })
	}
	visible := len(s.order)
	s.mu.Unlock()

	for _, cb := range closed {
		cb()
	}

	level := req.Level
	if level == "" {
		level = present.LevelInfo
	}
	notificationsShown.WithLabelValues(string(level)).Inc()
	notificationsVisible.Set(float64(visible))

	s.log.Debug("notification shown", "id", id, "level", string(level), "duration", duration)
	s.publish(eventbus.EventTypeNotificationShown, map[string]any{
		"id":      id,
		"message": req.Message,
		"level":   string(level),
	})

	if req.OnShow != nil {
		s.invokeCallback(id, func() { req.OnShow(id) })
	}
	return id, nil
}

// ShowNotification displays a simple notification. This is the sink
// surface the error handler delegates toast presentation to.
func (s *System) ShowNotification(message string, level present.Level, duration time.Duration) {
	if _, err := s.Show(Request{Message: message, Level: level, Duration: duration}); err != nil {
		s.log.Warn("failed to show notification", "error", err.Error())
	}
}

// Close removes a notification. Closing an unknown ID is a no-op.
func (s *System) Close(id string) {
	s.mu.Lock()
	cb := s.removeLocked(id, ReasonDismissed)
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// ClearAll removes every visible notification.
func (s *System) ClearAll() {
	var closed []func()
	s.mu.Lock()
	for _, id := range append([]string(nil), s.order...) {
		if cb := s.removeLocked(id, ReasonCleared); cb != nil {
			closed = append(closed, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range closed {
		cb()
	}
}

// Pause freezes one notification's countdown, remembering the remaining
// time. Sticky or already paused notifications are unaffected.
func (s *System) Pause(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked(id)
}

// Resume restarts a paused countdown with the time that remained when it
// was paused.
func (s *System) Resume(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeLocked(id)
}

// HoverStart pauses every countdown while the pointer is over the stack.
// No-op unless PauseOnHover is enabled.
func (s *System) HoverStart() {
	if !s.opts.PauseOnHover {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		s.pauseLocked(id)
	}
}

// HoverEnd resumes every countdown paused by HoverStart.
func (s *System) HoverEnd() {
	if !s.opts.PauseOnHover {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		s.resumeLocked(id)
	}
}

// ClickAction invokes the OnSelect callback of one action. The callback's
// return value decides whether the notification closes: true closes it,
// false keeps it open. Reports whether the action was found and invoked.
func (s *System) ClickAction(id, actionID string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	var action *present.Action
	for i := range e.actions {
		if e.actions[i].ID == actionID {
			action = &e.actions[i]
			break
		}
	}
	if action == nil {
		return false
	}

	notificationActions.Inc()
	s.publish(eventbus.EventTypeNotificationAction, map[string]any{
		"id":     id,
		"action": actionID,
	})

	shouldClose := true
	if action.OnSelect != nil {
		func() {
			defer func() {
				if v := recover(); v != nil {
					s.log.Error("notification action panicked", "id", id, "action", actionID, "panic", v)
				}
			}()
			shouldClose = action.OnSelect()
		}()
	}

	if shouldClose {
		s.mu.Lock()
		cb := s.removeLocked(id, ReasonAction)
		s.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
	return true
}

// SetPosition moves the notification stack, repositioning every currently
// visible notification as well as notifications shown afterwards.
func (s *System) SetPosition(pos present.Position) {
	normalized := present.NormalizePosition(string(pos))

	s.mu.Lock()
	s.position = normalized
	for _, id := range s.order {
		e := s.entries[id]
		e.surface.Position = normalized
		if err := e.handle.Update(e.surface); err != nil {
			s.log.Warn("failed to reposition notification", "id", id, "error", err.Error())
		}
	}
	s.mu.Unlock()
}

// Position returns the current stack position.
func (s *System) Position() present.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Visible returns the visible notifications, oldest first.
func (s *System) Visible() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.entries[id]; ok {
			n := e.n
			n.Paused = e.paused
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of visible notifications.
func (s *System) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Destroy removes all notifications and rejects further Show calls.
func (s *System) Destroy() {
	var closed []func()
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true

	for _, id := range append([]string(nil), s.order...) {
		if cb := s.removeLocked(id, ReasonCleared); cb != nil {
			closed = append(closed, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range closed {
		cb()
	}
	s.log.Debug("notification system destroyed")
}

// expire is the countdown callback.
func (s *System) expire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.paused {
		// Paused after the timer fired but before we got the lock; the
		// pause captured the remaining time, let Resume reschedule.
		s.mu.Unlock()
		return
	}
	cb := s.removeLocked(id, ReasonExpired)
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// pauseLocked freezes one countdown. Caller holds the lock.
func (s *System) pauseLocked(id string) {
	e, ok := s.entries[id]
	if !ok || e.paused || e.n.Sticky {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	remaining := e.deadline.Sub(s.clk.Now())
	if remaining < 0 {
		remaining = 0
	}
	e.remaining = remaining
	e.paused = true
}

// resumeLocked restarts a paused countdown with its remaining time.
// Caller holds the lock.
func (s *System) resumeLocked(id string) {
	e, ok := s.entries[id]
	if !ok || !e.paused {
		return
	}

	e.paused = false
	e.deadline = s.clk.Now().Add(e.remaining)
	e.timer = s.clk.AfterFunc(e.remaining, func() { s.expire(id) })
}

// removeLocked drops one notification and emits its close event. Caller
// holds the lock; unknown IDs are ignored. The returned function, when
// non-nil, invokes the entry's OnClose callback and must be called after
// the lock is released.
func (s *System) removeLocked(id, reason string) func() {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	_ = e.handle.Close()

	notificationsClosed.WithLabelValues(reason).Inc()
	notificationsVisible.Set(float64(len(s.order)))

	eventType := eventbus.EventTypeNotificationClosed
	if reason == ReasonEvicted {
		eventType = eventbus.EventTypeNotificationEvicted
	}
	s.publish(eventType, map[string]any{
		"id":     id,
		"reason": reason,
	})

	if e.onClose == nil {
		return nil
	}
	onClose := e.onClose
	return func() {
		s.invokeCallback(id, func() { onClose(id, reason) })
	}
}

// invokeCallback runs a user callback, containing panics.
func (s *System) invokeCallback(id string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			s.log.Error("notification callback panicked", "id", id, "panic", v)
		}
	}()
	fn()
}

func (s *System) publish(eventType string, payload map[string]any) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}
