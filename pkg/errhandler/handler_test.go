package errhandler

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/grimoire-docs/grimoire/pkg/clock"
	"github.com/grimoire-docs/grimoire/pkg/eventbus"
	"github.com/grimoire-docs/grimoire/pkg/logger"
	"github.com/grimoire-docs/grimoire/pkg/present"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "test")
}

func TestHandler_InitializeIdempotent(t *testing.T) {
	h := New(Options{Logger: testLogger()})

	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	if err := h.Initialize(); err != nil {
		t.Errorf("second Initialize() = %v, want nil", err)
	}
}

func TestHandler_DestroyedCannotReinitialize(t *testing.T) {
	h := New(Options{Logger: testLogger()})
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}

	h.Destroy()
	h.Destroy() // multiple calls are safe

	if err := h.Initialize(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Initialize() after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestHandler_HookInstallAndChain(t *testing.T) {
	src := NewChainSource()

	prevCalls := 0
	src.SetUncaughtHook(func(v any) bool {
		prevCalls++
		return false
	})

	h := New(Options{
		CaptureGlobalErrors: true,
		Source:              src,
		Logger:              testLogger(),
	})
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}

	if suppressed := src.Uncaught(errors.New("boom")); !suppressed {
		t.Error("Uncaught() = false, want true once the handler is installed")
	}

	hist := h.ErrorHistory()
	if len(hist) != 1 {
		t.Fatalf("history has %d records, want 1", len(hist))
	}
	if hist[0].Severity != SeverityUnhandledGlobal {
		t.Errorf("record severity = %q, want %q", hist[0].Severity, SeverityUnhandledGlobal)
	}
	if prevCalls != 1 {
		t.Errorf("previous hook invoked %d times, want 1", prevCalls)
	}
}

func TestHandler_RejectionHookSeverity(t *testing.T) {
	src := NewChainSource()
	h := New(Options{
		CaptureGlobalErrors: true,
		Source:              src,
		Logger:              testLogger(),
		AutoInit:            true,
	})
	defer h.Destroy()

	src.Rejected(errors.New("nobody awaited this"))

	hist := h.ErrorHistory()
	if len(hist) != 1 {
		t.Fatalf("history has %d records, want 1", len(hist))
	}
	if hist[0].Severity != SeverityUnhandledPromise {
		t.Errorf("record severity = %q, want %q", hist[0].Severity, SeverityUnhandledPromise)
	}
}

func TestHandler_DestroyRestoresOriginalHooks(t *testing.T) {
	src := NewChainSource()

	baseCalls := 0
	src.SetUncaughtHook(func(v any) bool {
		baseCalls++
		return false
	})

	h := New(Options{
		CaptureGlobalErrors: true,
		Source:              src,
		Logger:              testLogger(),
	})
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	h.Destroy()

	// The original hook is back: dispatch reaches it directly and its
	// return value is what the source reports.
	if suppressed := src.Uncaught(errors.New("boom")); suppressed {
		t.Error("Uncaught() after Destroy = true, want the original hook's false")
	}
	if baseCalls != 1 {
		t.Errorf("original hook invoked %d times after Destroy, want 1", baseCalls)
	}
	if got := len(h.ErrorHistory()); got != 0 {
		t.Errorf("history has %d records after Destroy, want 0", got)
	}
}

func TestHandler_DestroyRestoresNilHooks(t *testing.T) {
	src := NewChainSource()
	h := New(Options{
		CaptureGlobalErrors: true,
		Source:              src,
		Logger:              testLogger(),
		AutoInit:            true,
	})
	h.Destroy()

	if src.UncaughtHook() != nil {
		t.Error("uncaught hook not nil after Destroy, want the pre-init nil restored")
	}
	if src.RejectionHook() != nil {
		t.Error("rejection hook not nil after Destroy, want the pre-init nil restored")
	}
}

func TestHandler_RecordsWithoutNotifications(t *testing.T) {
	rec := present.NewRecorder()
	h := New(Options{
		ShowNotifications: false,
		LogErrors:         true,
		Renderer:          rec,
		Logger:            testLogger(),
		AutoInit:          true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("quiet failure"), Metadata{Source: "search"})

	if got := len(h.ErrorHistory()); got != 1 {
		t.Errorf("history has %d records, want 1", got)
	}
	if got := len(rec.Open()); got != 0 {
		t.Errorf("open surfaces = %d, want 0 with notifications disabled", got)
	}
}

func TestHandler_ToastAutoDismiss(t *testing.T) {
	rec := present.NewRecorder()
	clk := clock.NewFake()
	h := New(Options{
		ShowNotifications:    true,
		NotificationKind:     present.KindToast,
		NotificationDuration: 5 * time.Second,
		Renderer:             rec,
		Clock:                clk,
		Logger:               testLogger(),
		AutoInit:             true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("boom"), Metadata{})

	if got := len(rec.OpenByKind(present.KindToast)); got != 1 {
		t.Fatalf("open toasts = %d, want 1", got)
	}

	clk.Advance(5 * time.Second)

	if got := len(rec.Open()); got != 0 {
		t.Errorf("open surfaces after dismiss delay = %d, want 0", got)
	}
	if got := rec.ClosedCount(); got != 1 {
		t.Errorf("ClosedCount() = %d, want 1", got)
	}
}

func TestHandler_ModalExclusive(t *testing.T) {
	rec := present.NewRecorder()
	h := New(Options{
		ShowNotifications: true,
		NotificationKind:  present.KindModal,
		Renderer:          rec,
		Logger:            testLogger(),
		AutoInit:          true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("first"), Metadata{})
	h.HandleError(errors.New("second"), Metadata{})

	// Only the first modal is displayed; both errors are still recorded.
	if got := len(rec.OpenByKind(present.KindModal)); got != 1 {
		t.Errorf("open modals = %d, want 1", got)
	}
	if got := len(h.ErrorHistory()); got != 2 {
		t.Errorf("history has %d records, want 2", got)
	}

	// Closing the active modal frees the slot.
	h.CloseModal()
	h.HandleError(errors.New("third"), Metadata{})
	if got := len(rec.OpenByKind(present.KindModal)); got != 1 {
		t.Errorf("open modals after close = %d, want 1", got)
	}
}

func TestHandler_InlineUpdatesInPlace(t *testing.T) {
	rec := present.NewRecorder()
	clk := clock.NewFake()
	h := New(Options{
		ShowNotifications: true,
		NotificationKind:  present.KindInline,
		Renderer:          rec,
		Clock:             clk,
		Logger:            testLogger(),
		AutoInit:          true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("first"), Metadata{Target: "#search-box"})
	h.HandleError(errors.New("second"), Metadata{Target: "#search-box"})

	inline := rec.OpenByKind(present.KindInline)
	if len(inline) != 1 {
		t.Fatalf("open inline surfaces = %d, want 1", len(inline))
	}
	if inline[0].Message != "Second" {
		t.Errorf("inline message = %q, want the updated %q", inline[0].Message, "Second")
	}
	if got := rec.UpdateCount(); got != 1 {
		t.Errorf("UpdateCount() = %d, want 1", got)
	}
}

func TestHandler_InlineWithoutTargetFallsBackToToast(t *testing.T) {
	rec := present.NewRecorder()
	h := New(Options{
		ShowNotifications: true,
		NotificationKind:  present.KindInline,
		Renderer:          rec,
		Logger:            testLogger(),
		AutoInit:          true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("boom"), Metadata{})

	if got := len(rec.OpenByKind(present.KindToast)); got != 1 {
		t.Errorf("open toasts = %d, want 1 as inline fallback", got)
	}
	if got := len(rec.OpenByKind(present.KindInline)); got != 0 {
		t.Errorf("open inline surfaces = %d, want 0 without a target", got)
	}
}

func TestHandler_SinkReceivesToasts(t *testing.T) {
	sink := &captureSink{}
	rec := present.NewRecorder()
	h := New(Options{
		ShowNotifications:    true,
		NotificationKind:     present.KindToast,
		NotificationDuration: 3 * time.Second,
		Sink:                 sink,
		Renderer:             rec,
		Logger:               testLogger(),
		AutoInit:             true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("boom"), Metadata{})

	if len(sink.shown) != 1 {
		t.Fatalf("sink received %d notifications, want 1", len(sink.shown))
	}
	if sink.shown[0].level != present.LevelError {
		t.Errorf("sink level = %q, want %q", sink.shown[0].level, present.LevelError)
	}
	if sink.shown[0].duration != 3*time.Second {
		t.Errorf("sink duration = %v, want %v", sink.shown[0].duration, 3*time.Second)
	}
	if got := len(rec.Open()); got != 0 {
		t.Errorf("renderer received %d surfaces, want 0 when a sink is set", got)
	}
}

type captureSink struct {
	shown []struct {
		message  string
		level    present.Level
		duration time.Duration
	}
}

func (s *captureSink) ShowNotification(message string, level present.Level, duration time.Duration) {
	s.shown = append(s.shown, struct {
		message  string
		level    present.Level
		duration time.Duration
	}{message, level, duration})
}

func TestHandler_WrapReturnsIdenticalError(t *testing.T) {
	h := New(Options{Logger: testLogger(), AutoInit: true})
	defer h.Destroy()

	sentinel := errors.New("boom")
	wrapped := h.Wrap(func() error { return sentinel }, Metadata{Source: "export"})

	if err := wrapped(); err != sentinel {
		t.Errorf("wrapped() = %v, want the identical error value", err)
	}
	if got := len(h.ErrorHistory()); got != 1 {
		t.Errorf("history has %d records, want 1", got)
	}

	// A successful call reports nothing.
	ok := h.Wrap(func() error { return nil }, Metadata{})
	if err := ok(); err != nil {
		t.Errorf("wrapped success = %v, want nil", err)
	}
	if got := len(h.ErrorHistory()); got != 1 {
		t.Errorf("history has %d records after success, want 1", got)
	}
}

func TestHandler_WrapRethrowsPanic(t *testing.T) {
	h := New(Options{Logger: testLogger(), AutoInit: true})
	defer h.Destroy()

	wrapped := h.Wrap(func() error { panic("original panic") }, Metadata{})

	defer func() {
		v := recover()
		if v != "original panic" {
			t.Errorf("recovered %v, want the identical panic value", v)
		}
		if got := len(h.ErrorHistory()); got != 1 {
			t.Errorf("history has %d records, want 1", got)
		}
	}()
	_ = wrapped()
}

func TestHandler_OnErrorPanicContained(t *testing.T) {
	h := New(Options{
		OnError:  func(err error, rec Record) { panic("callback bug") },
		Logger:   testLogger(),
		AutoInit: true,
	})
	defer h.Destroy()

	// The funnel must survive its own callback failing.
	h.HandleError(errors.New("boom"), Metadata{})

	if got := len(h.ErrorHistory()); got != 1 {
		t.Errorf("history has %d records, want 1", got)
	}
}

func TestHandler_DedupSuppressesRepeats(t *testing.T) {
	rec := present.NewRecorder()
	clk := clock.NewFake()
	h := New(Options{
		ShowNotifications:    true,
		NotificationKind:     present.KindToast,
		NotificationDuration: time.Hour,
		DedupWindow:          time.Minute,
		Renderer:             rec,
		Clock:                clk,
		Logger:               testLogger(),
		AutoInit:             true,
	})
	defer h.Destroy()

	boom := errors.New("boom")
	h.HandleError(boom, Metadata{})
	h.HandleError(boom, Metadata{})
	h.HandleError(boom, Metadata{})

	if got := len(rec.OpenByKind(present.KindToast)); got != 1 {
		t.Errorf("open toasts = %d, want 1 with repeats suppressed", got)
	}
	if got := len(h.ErrorHistory()); got != 3 {
		t.Errorf("history has %d records, want 3", got)
	}

	// Past the window the error surfaces again, tagged with the repeat count.
	clk.Advance(2 * time.Minute)
	h.HandleError(boom, Metadata{})

	toasts := rec.OpenByKind(present.KindToast)
	if len(toasts) != 2 {
		t.Fatalf("open toasts after window = %d, want 2", len(toasts))
	}
	want := "Boom (repeated 2 times)"
	if toasts[1].Message != want {
		t.Errorf("resurfaced message = %q, want %q", toasts[1].Message, want)
	}
}

func TestHandler_ClearErrorHistory(t *testing.T) {
	bus := eventbus.New(testLogger())
	defer bus.Close()

	sub, err := bus.Subscribe("test", eventbus.Filter{Types: []string{eventbus.EventTypeHistoryCleared}}, 4)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}

	h := New(Options{Bus: bus, Logger: testLogger(), AutoInit: true})
	defer h.Destroy()

	h.HandleError(errors.New("boom"), Metadata{})
	h.ClearErrorHistory()

	if got := len(h.ErrorHistory()); got != 0 {
		t.Errorf("history has %d records after clear, want 0", got)
	}

	select {
	case ev := <-sub.Events:
		if ev.Type != eventbus.EventTypeHistoryCleared {
			t.Errorf("event type = %q, want %q", ev.Type, eventbus.EventTypeHistoryCleared)
		}
	case <-time.After(time.Second):
		t.Fatal("no history-cleared event published")
	}
}

func TestHandler_PublishesHandledEvents(t *testing.T) {
	bus := eventbus.New(testLogger())
	defer bus.Close()

	sub, err := bus.Subscribe("test", eventbus.Filter{Types: []string{eventbus.EventTypeErrorHandled}}, 4)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}

	h := New(Options{Bus: bus, Logger: testLogger(), AutoInit: true})
	defer h.Destroy()

	h.HandleError(errors.New("boom"), Metadata{Source: "guide"})

	select {
	case ev := <-sub.Events:
		if ev.Payload["source"] != "guide" {
			t.Errorf("event source = %v, want %q", ev.Payload["source"], "guide")
		}
		if ev.Payload["severity"] != string(SeverityCallerReported) {
			t.Errorf("event severity = %v, want %q", ev.Payload["severity"], SeverityCallerReported)
		}
	case <-time.After(time.Second):
		t.Fatal("no error-handled event published")
	}
}

func TestHandler_DestroyClosesSurfacesAndTimers(t *testing.T) {
	rec := present.NewRecorder()
	clk := clock.NewFake()
	h := New(Options{
		ShowNotifications:    true,
		NotificationKind:     present.KindToast,
		NotificationDuration: time.Hour,
		Renderer:             rec,
		Clock:                clk,
		Logger:               testLogger(),
		AutoInit:             true,
	})

	h.HandleError(errors.New("one"), Metadata{})
	h.HandleError(errors.New("two"), Metadata{})

	h.Destroy()

	if got := len(rec.Open()); got != 0 {
		t.Errorf("open surfaces after Destroy = %d, want 0", got)
	}
	if got := clk.PendingTimers(); got != 0 {
		t.Errorf("pending timers after Destroy = %d, want 0", got)
	}
}

func TestHandler_DropsAfterDestroy(t *testing.T) {
	h := New(Options{Logger: testLogger(), AutoInit: true})
	h.Destroy()

	rec := h.HandleError(errors.New("late"), Metadata{})
	if rec.ID != "" {
		t.Errorf("HandleError after Destroy produced record %q, want none", rec.ID)
	}
}

func TestHandler_CustomMessages(t *testing.T) {
	rec := present.NewRecorder()
	h := New(Options{
		ShowNotifications: true,
		Messages: map[string]string{
			"/fetch/": "Could not reach the server.",
		},
		Renderer: rec,
		Logger:   testLogger(),
		AutoInit: true,
	})
	defer h.Destroy()

	h.HandleError(errors.New("fetch /api/guides failed"), Metadata{})

	hist := h.ErrorHistory()
	if len(hist) != 1 {
		t.Fatalf("history has %d records, want 1", len(hist))
	}
	if hist[0].Message != "Could not reach the server." {
		t.Errorf("record message = %q, want %q", hist[0].Message, "Could not reach the server.")
	}
}
