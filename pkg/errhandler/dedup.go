package errhandler

import (
	"sync"
	"time"

	"github.com/grimoire-docs/grimoire/pkg/clock"
)

// dedupEntry tracks occurrences of one error signature.
type dedupEntry struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int
}

// Deduper rate-limits repeated surfacing of the same error. Every error is
// still recorded in history and logged; dedup only gates the visible
// surface:
//   - unhandled errors always surface
//   - first occurrence of a signature surfaces
//   - repeats within the window are counted but not surfaced
//   - once the window expires, the next occurrence surfaces with the
//     accumulated repeat count
type Deduper struct {
	mu          sync.Mutex
	seen        map[string]*dedupEntry
	window      time.Duration
	retention   time.Duration
	clk         clock.Clock
	lastCleanup time.Time
}

// NewDeduper creates a deduper with the given rate-limit window. A zero or
// negative window disables deduplication entirely.
func NewDeduper(window time.Duration, clk clock.Clock) *Deduper {
	if clk == nil {
		clk = clock.System()
	}
	return &Deduper{
		seen:        make(map[string]*dedupEntry),
		window:      window,
		retention:   24 * time.Hour,
		clk:         clk,
		lastCleanup: clk.Now(),
	}
}

// ShouldSurface reports whether the record should be visibly surfaced, and
// the number of suppressed repeats since the last surfaced occurrence.
func (d *Deduper) ShouldSurface(rec Record) (bool, int) {
	if d == nil || d.window <= 0 {
		return true, 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeCleanup()

	sig := signature(rec)
	now := rec.Timestamp

	// Unhandled errors always surface.
	if rec.Severity == SeverityUnhandledGlobal || rec.Severity == SeverityUnhandledPromise {
		entry, exists := d.seen[sig]
		if exists {
			entry.LastSeen = now
			entry.Count++
		} else {
			d.seen[sig] = &dedupEntry{FirstSeen: now, LastSeen: now, Count: 1}
		}
		return true, 0
	}

	entry, exists := d.seen[sig]
	if !exists {
		d.seen[sig] = &dedupEntry{FirstSeen: now, LastSeen: now, Count: 1}
		return true, 0
	}

	if now.Sub(entry.LastSeen) < d.window {
		entry.Count++
		entry.LastSeen = now
		return false, 0
	}

	// Window expired: surface with the count of suppressed repeats.
	repeats := entry.Count - 1
	entry.LastSeen = now
	entry.Count = 1
	return true, repeats
}

// Clear forgets all signatures, so the next occurrence of anything is
// treated as first-seen.
func (d *Deduper) Clear() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]*dedupEntry)
}

// Cleanup drops signatures with no activity inside the retention period.
func (d *Deduper) Cleanup() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleanupLocked()
}

// maybeCleanup runs cleanup at most once per hour. Caller holds the lock.
func (d *Deduper) maybeCleanup() {
	if d.clk.Now().Sub(d.lastCleanup) < time.Hour {
		return
	}
	d.cleanupLocked()
}

func (d *Deduper) cleanupLocked() int {
	now := d.clk.Now()
	d.lastCleanup = now

	removed := 0
	for sig, entry := range d.seen {
		if now.Sub(entry.LastSeen) > d.retention {
			delete(d.seen, sig)
			removed++
		}
	}
	return removed
}

// signature derives the dedup key for a record: errors with the same type
// and display message are considered repeats.
func signature(rec Record) string {
	return normalizedTypeName(rec.Err) + "|" + rec.Message
}
