// Package health tracks request outcomes in sliding windows and the
// process shutdown flag. The /health handler derives overloaded, idle
// and degraded states from these counts.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

var (
	defaultTracker Tracker
	shuttingDown   atomic.Bool
)

// RecordSuccess records a successfully served imagery request.
func RecordSuccess() { defaultTracker.Record(outcomeSuccess) }

// RecordError records a failed imagery request (pipeline error, timeout).
func RecordError() { defaultTracker.Record(outcomeError) }

// RecordDenial records a rate-limit denial (429).
func RecordDenial() { defaultTracker.Record(outcomeDenied) }

// RequestCount returns all outcomes (success + error + denied) within the window.
func RequestCount(window time.Duration) int { return defaultTracker.Count(window, anyOutcome) }

// DenialCount returns the denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.Count(window, outcomeDenied) }

// ErrorRate returns (errors, successes+errors) within the window. Denials
// are excluded from the total; a rejected request says nothing about upstream.
func ErrorRate(window time.Duration) (errs, total int) {
	errs = defaultTracker.Count(window, outcomeError)
	total = errs + defaultTracker.Count(window, outcomeSuccess)
	return errs, total
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT received;
// /health returns 503 shutting-down while set.
func SetShuttingDown(v bool) { shuttingDown.Store(v) }

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool { return shuttingDown.Load() }

// Reset clears all recorded outcomes and the shutdown flag. For tests only.
func Reset() {
	defaultTracker.Reset()
	shuttingDown.Store(false)
}

type outcome uint8

const (
	outcomeSuccess outcome = iota
	outcomeError
	outcomeDenied
	anyOutcome
)

type event struct {
	at   time.Time
	kind outcome
}

// Tracker maintains a sliding window of request outcomes. The zero value
// is ready to use.
type Tracker struct {
	mu     sync.Mutex
	events []event
}

// Record stores an outcome at the current time.
func (t *Tracker) Record(kind outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.events = append(t.events, event{at: now, kind: kind})
	t.pruneLocked(now)
}

// Count returns outcomes of the given kind within the window ending now.
// anyOutcome counts everything.
func (t *Tracker) Count(window time.Duration, kind outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.pruneLocked(now)
	cutoff := now.Add(-window)
	n := 0
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		if kind == anyOutcome || e.kind == kind {
			n++
		}
	}
	return n
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// Events older than 30 minutes can never be inside a health window.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-30 * time.Minute)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
