package errhandler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grimoire-docs/grimoire/pkg/clock"
	"github.com/grimoire-docs/grimoire/pkg/eventbus"
	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

// ErrDestroyed is returned when initializing a handler that has been
// destroyed. Construct a new handler instead.
var ErrDestroyed = errors.New("error handler destroyed")

// DefaultNotificationDuration is the toast auto-dismiss delay when none is
// configured.
const DefaultNotificationDuration = 5 * time.Second

// Sink is the capability the handler needs from a notification backend.
// When a Sink is supplied, toast presentation is delegated to it instead
// of the handler's own strategy and renderer. notify.System satisfies it.
type Sink interface {
	ShowNotification(message string, level present.Level, duration time.Duration)
}

// Options configures a Handler.
type Options struct {
	// CaptureGlobalErrors installs hooks on Source during Initialize.
	CaptureGlobalErrors bool

	// LogErrors emits a structured log line per handled error.
	LogErrors bool

	// ShowNotifications surfaces handled errors visibly.
	ShowNotifications bool

	// NotificationKind selects toast, modal or inline presentation.
	NotificationKind present.Kind

	// NotificationDuration is the auto-dismiss delay for toast and inline
	// surfaces. Defaults to DefaultNotificationDuration.
	NotificationDuration time.Duration

	// IncludeStackTrace attaches a stack trace to every record.
	IncludeStackTrace bool

	// OnError is invoked after each handled error. Failures inside the
	// callback are caught and logged, never propagated.
	OnError func(err error, rec Record)

	// Messages configures classification, see NewClassifier.
	Messages map[string]string

	// MaxErrorHistory bounds the rolling history. Defaults to
	// DefaultMaxHistory.
	MaxErrorHistory int

	// DedupWindow rate-limits repeated surfacing of one signature.
	// Zero disables deduplication.
	DedupWindow time.Duration

	// Position places toast surfaces.
	Position present.Position

	// AutoInit calls Initialize from New.
	AutoInit bool

	// Source provides global error signals. Defaults to a RuntimeSource.
	Source Source

	// Sink, when set, delivers toast feedback instead of the Renderer.
	Sink Sink

	// Renderer displays surfaces. Defaults to a present.Recorder.
	Renderer present.Renderer

	// Clock drives timestamps and dismiss timers. Defaults to the system
	// clock.
	Clock clock.Clock

	// Logger receives structured logs. Defaults to the global logger.
	Logger *logger.Logger

	// Bus, when set, receives error.handled and related events.
	Bus *eventbus.Bus
}

type handlerState int

const (
	stateNew handlerState = iota
	stateInitialized
	stateDestroyed
)

// dismissal tracks one scheduled auto-dismiss.
type dismissal struct {
	timer  clock.Timer
	handle present.Handle
}

// Handler is the process-wide error funnel. Lifecycle:
// Uninitialized -> Initialized -> Destroyed. Initialize is idempotent;
// Destroy restores previously installed hooks verbatim and is safe to
// call multiple times. A destroyed handler cannot be reinitialized.
type Handler struct {
	opts       Options
	classifier *Classifier
	history    *History
	dedup      *Deduper
	clk        clock.Clock
	log        *logger.Logger
	bus        *eventbus.Bus

	mu             sync.Mutex
	state          handlerState
	hooksInstalled bool
	prevUncaught   Hook
	prevRejection  Hook

	activeModal present.Handle
	inline      map[string]present.Handle
	nextDismiss int
	dismissals  map[int]*dismissal
}

// New creates a Handler. With AutoInit set, the handler is initialized
// before New returns.
func New(opts Options) *Handler {
	if opts.NotificationDuration <= 0 {
		opts.NotificationDuration = DefaultNotificationDuration
	}
	if opts.NotificationKind == "" {
		opts.NotificationKind = present.KindToast
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Source == nil {
		opts.Source = NewRuntimeSource()
	}
	if opts.Renderer == nil {
		opts.Renderer = present.NewRecorder()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}

	h := &Handler{
		opts:       opts,
		classifier: NewClassifier(opts.Messages),
		history:    NewHistory(opts.MaxErrorHistory),
		dedup:      NewDeduper(opts.DedupWindow, opts.Clock),
		clk:        opts.Clock,
		log:        opts.Logger.WithComponent("errhandler"),
		bus:        opts.Bus,
		inline:     make(map[string]present.Handle),
		dismissals: make(map[int]*dismissal),
	}

	if opts.AutoInit {
		_ = h.Initialize()
	}
	return h
}

// Initialize installs the global hooks when CaptureGlobalErrors is set.
// Calling it again is a no-op; calling it after Destroy fails.
func (h *Handler) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateInitialized:
		return nil
	case stateDestroyed:
		return ErrDestroyed
	}

	if h.opts.CaptureGlobalErrors {
		// Each hook normalizes the raw value, funnels it through
		// HandleError, delegates to the previously installed hook so
		// other listeners are not starved, then suppresses the default
		// surface.
		var prevUncaught Hook
		uncaught := func(v any) bool {
			h.HandleError(v, Metadata{Source: "global", Kind: "global", Unhandled: true})
			if prevUncaught != nil {
				prevUncaught(v)
			}
			return true
		}
		prevUncaught = h.opts.Source.SetUncaughtHook(uncaught)
		h.prevUncaught = prevUncaught

		var prevRejection Hook
		rejection := func(v any) bool {
			h.HandleError(v, Metadata{Source: "global", Kind: "promise", Unhandled: true})
			if prevRejection != nil {
				prevRejection(v)
			}
			return true
		}
		prevRejection = h.opts.Source.SetRejectionHook(rejection)
		h.prevRejection = prevRejection

		h.hooksInstalled = true
	}

	h.state = stateInitialized
	h.log.Debug("error handler initialized",
		"capture_global", h.opts.CaptureGlobalErrors,
		"notification_kind", string(h.opts.NotificationKind),
	)
	return nil
}

// HandleError is the single funnel every error passes through. It never
// panics: this is the last line of defense, so its own failures are caught
// and logged. The error is always recorded in history, whether or not it
// is visibly surfaced. Returns the created record.
func (h *Handler) HandleError(v any, meta Metadata) (rec Record) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("HandleError recovered from internal failure", "panic", fmt.Sprintf("%v", r))
		}
	}()

	h.mu.Lock()
	destroyed := h.state == stateDestroyed
	h.mu.Unlock()
	if destroyed {
		h.log.Warn("error received after destroy, dropping", "error", fmt.Sprintf("%v", v))
		return Record{}
	}

	err := normalizeError(v)
	cls := h.classifier.Classify(err, meta)
	rec = newRecord(err, cls.DisplayMessage, meta, h.clk.Now(), h.opts.IncludeStackTrace)

	h.history.Add(rec)
	errorsHandled.WithLabelValues(string(rec.Severity), labelKind(meta)).Inc()

	if h.opts.LogErrors {
		h.log.Error("handled error",
			"record_id", rec.ID,
			"message", rec.Message,
			"severity", string(rec.Severity),
			"error_type", normalizedTypeName(err),
			"error", err.Error(),
			"source", meta.Source,
		)
	}

	surface, repeats := h.dedup.ShouldSurface(rec)
	if h.opts.ShowNotifications {
		if surface {
			h.present(rec, meta, repeats)
		} else {
			errorsSuppressed.WithLabelValues("dedup").Inc()
			h.publish(eventbus.EventTypeErrorSuppressed, map[string]any{
				"record_id": rec.ID,
				"reason":    "dedup",
			})
		}
	}

	if h.opts.OnError != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Error("OnError callback panicked", "panic", fmt.Sprintf("%v", r))
				}
			}()
			h.opts.OnError(err, rec)
		}()
	}

	h.publish(eventbus.EventTypeErrorHandled, map[string]any{
		"record_id": rec.ID,
		"message":   rec.Message,
		"severity":  string(rec.Severity),
		"source":    meta.Source,
	})

	return rec
}

// Wrap returns a function with the same shape as fn that reports failures
// through HandleError and then lets them continue: returned errors are
// returned unchanged and panics are re-raised, so callers keep their
// original control flow.
func (h *Handler) Wrap(fn func() error, meta Metadata) func() error {
	return func() error {
		defer func() {
			if v := recover(); v != nil {
				h.HandleError(v, meta)
				panic(v)
			}
		}()

		if err := fn(); err != nil {
			h.HandleError(err, meta)
			return err
		}
		return nil
	}
}

// WrapFunc is Wrap for functions without an error result: only panics are
// observed, and they are re-raised after reporting.
func (h *Handler) WrapFunc(fn func(), meta Metadata) func() {
	wrapped := h.Wrap(func() error {
		fn()
		return nil
	}, meta)
	return func() { _ = wrapped() }
}

// ErrorHistory returns a snapshot of handled errors, most-recent-first.
func (h *Handler) ErrorHistory() []Record {
	return h.history.All()
}

// ClearErrorHistory removes all recorded errors.
func (h *Handler) ClearErrorHistory() {
	h.history.Clear()
	h.publish(eventbus.EventTypeHistoryCleared, nil)
}

// CleanupDedup drops stale dedup signatures and returns how many were
// removed. Intended to run periodically in long-lived processes.
func (h *Handler) CleanupDedup() int {
	return h.dedup.Cleanup()
}

// CloseModal dismisses the active modal, if any.
func (h *Handler) CloseModal() {
	h.mu.Lock()
	handle := h.activeModal
	h.activeModal = nil
	h.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
}

// Destroy restores the previously installed hooks verbatim, cancels all
// outstanding timers and removes every surface the handler created.
// Safe to call multiple times.
func (h *Handler) Destroy() {
	h.mu.Lock()
	if h.state == stateDestroyed {
		h.mu.Unlock()
		return
	}
	h.state = stateDestroyed

	if h.hooksInstalled {
		h.opts.Source.SetUncaughtHook(h.prevUncaught)
		h.opts.Source.SetRejectionHook(h.prevRejection)
		h.hooksInstalled = false
	}

	dismissals := h.dismissals
	h.dismissals = make(map[int]*dismissal)
	modal := h.activeModal
	h.activeModal = nil
	inline := h.inline
	h.inline = make(map[string]present.Handle)
	h.mu.Unlock()

	for _, d := range dismissals {
		d.timer.Stop()
		_ = d.handle.Close()
	}
	if modal != nil {
		_ = modal.Close()
	}
	for _, handle := range inline {
		_ = handle.Close()
	}

	h.history.Clear()
	h.dedup.Clear()
	h.log.Debug("error handler destroyed")
}

// present dispatches one record to the configured presentation surface.
// Every handled error produces at most one visible surface.
func (h *Handler) present(rec Record, meta Metadata, repeats int) {
	message := rec.Message
	if repeats > 0 {
		message = fmt.Sprintf("%s (repeated %d times)", message, repeats)
	}

	kind := h.opts.NotificationKind
	if kind == present.KindInline && meta.Target == "" {
		// No anchor to attach to: fall back to toast.
		kind = present.KindToast
	}

	switch kind {
	case present.KindModal:
		h.presentModal(message, rec)
	case present.KindInline:
		h.presentInline(message, meta.Target)
	default:
		h.presentToast(message)
	}
}

func (h *Handler) presentToast(message string) {
	if h.opts.Sink != nil {
		h.opts.Sink.ShowNotification(message, present.LevelError, h.opts.NotificationDuration)
		return
	}

	strat := present.ToastStrategy{
		Duration: h.opts.NotificationDuration,
		Position: h.opts.Position,
	}
	surface := strat.Build(present.Request{Message: message, Level: present.LevelError})

	handle, err := h.render(surface)
	if err != nil {
		h.log.Warn("toast render failed", "error", err.Error())
		return
	}
	h.scheduleDismiss(handle, h.opts.NotificationDuration)
}

func (h *Handler) presentModal(message string, rec Record) {
	h.mu.Lock()
	if h.activeModal != nil {
		// First writer wins: the second modal request is suppressed, but
		// the error was already recorded and logged.
		h.mu.Unlock()
		modalsSuppressed.Inc()
		h.log.Warn("modal already active, presentation suppressed", "record_id", rec.ID)
		h.publish(eventbus.EventTypeErrorSuppressed, map[string]any{
			"record_id": rec.ID,
			"reason":    "modal_active",
		})
		return
	}
	h.mu.Unlock()

	strat := present.ModalStrategy{
		OfferReload: true,
		OnReload: func() bool {
			h.CloseModal()
			return true
		},
	}
	surface := strat.Build(present.Request{Message: message, Level: present.LevelError})

	handle, err := h.render(surface)
	if err != nil {
		h.log.Warn("modal render failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	if h.activeModal != nil || h.state == stateDestroyed {
		// Lost the race, or destroyed while rendering.
		h.mu.Unlock()
		_ = handle.Close()
		modalsSuppressed.Inc()
		return
	}
	h.activeModal = handle
	h.mu.Unlock()
}

func (h *Handler) presentInline(message, target string) {
	strat := present.InlineStrategy{}
	surface := strat.Build(present.Request{
		Message: message,
		Level:   present.LevelError,
		Target:  target,
	})

	h.mu.Lock()
	existing := h.inline[target]
	h.mu.Unlock()

	if existing != nil {
		// Update in place rather than stacking duplicates.
		if err := existing.Update(surface); err == nil {
			return
		}
		// The old surface is gone; fall through and create a new one.
		h.mu.Lock()
		delete(h.inline, target)
		h.mu.Unlock()
	}

	handle, err := h.render(surface)
	if err != nil {
		// Target did not resolve: fall back to toast.
		h.presentToast(message)
		return
	}

	h.mu.Lock()
	h.inline[target] = handle
	h.mu.Unlock()

	h.scheduleDismissFunc(h.opts.NotificationDuration, func() {
		h.mu.Lock()
		if h.inline[target] == handle {
			delete(h.inline, target)
		}
		h.mu.Unlock()
		_ = handle.Close()
	})
}

// render displays a surface through the configured renderer.
func (h *Handler) render(surface present.Surface) (present.Handle, error) {
	return h.opts.Renderer.Render(surface)
}

// scheduleDismiss closes the handle after d elapses, tracking the timer so
// Destroy can cancel it.
func (h *Handler) scheduleDismiss(handle present.Handle, d time.Duration) {
	h.mu.Lock()
	id := h.nextDismiss
	h.nextDismiss++

	entry := &dismissal{handle: handle}
	entry.timer = h.clk.AfterFunc(d, func() {
		h.mu.Lock()
		delete(h.dismissals, id)
		h.mu.Unlock()
		_ = handle.Close()
	})
	h.dismissals[id] = entry
	h.mu.Unlock()
}

// scheduleDismissFunc runs fn after d elapses, tracked like scheduleDismiss.
func (h *Handler) scheduleDismissFunc(d time.Duration, fn func()) {
	h.mu.Lock()
	id := h.nextDismiss
	h.nextDismiss++

	entry := &dismissal{handle: noopHandle{}}
	entry.timer = h.clk.AfterFunc(d, func() {
		h.mu.Lock()
		delete(h.dismissals, id)
		h.mu.Unlock()
		fn()
	})
	h.dismissals[id] = entry
	h.mu.Unlock()
}

func (h *Handler) publish(eventType string, payload map[string]any) {
	if h.bus != nil {
		h.bus.Publish(eventType, payload)
	}
}

func labelKind(meta Metadata) string {
	if meta.Kind == "" {
		return "direct"
	}
	return meta.Kind
}

type noopHandle struct{}

func (noopHandle) Update(present.Surface) error { return nil }
func (noopHandle) Close() error                 { return nil }
