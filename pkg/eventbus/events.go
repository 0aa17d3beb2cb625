// Package eventbus provides the signal surface external collaborators
// observe: error-handled, notification lifecycle and surface rendering
// events, broadcast to in-process subscribers and WebSocket clients.
package eventbus

import (
	"encoding/json"
	"time"
)

// Event type constants for all Grimoire runtime events
const (
	// Error handler events
	EventTypeErrorHandled    = "error.handled"
	EventTypeErrorSuppressed = "error.suppressed"
	EventTypeHistoryCleared  = "error.history_cleared"

	// Notification events
	EventTypeNotificationShown   = "notification.shown"
	EventTypeNotificationClosed  = "notification.closed"
	EventTypeNotificationAction  = "notification.action"
	EventTypeNotificationEvicted = "notification.evicted"

	// Surface rendering events (HTML fragments for the web shell)
	EventTypeSurfaceFragment = "surface.fragment"
)

// Event is one observable signal with an open payload.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Marshal serializes the event for wire delivery.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Filter defines which events a subscriber wants to receive.
type Filter struct {
	// Types restricts delivery to these event types (empty = all types).
	Types []string
}

// Matches reports whether the filter accepts the event.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}
