// Package watchdog implements a liveness timer used to detect a
// silent peer — a PLC that has stopped reporting status, or a session
// that has gone quiet (spec.md §5 "Watchdogs").
//
// A Watchdog tracks the time of its last Feed() call. Expired()
// reports whether more than its configured timeout has elapsed since
// then. An optional background goroutine can poll on an interval and
// invoke a callback once on the untripped->expired edge; callers that
// prefer to poll Expired() themselves from an existing event loop can
// skip Start() entirely — suspension only happens at the poll
// ticker, matching the single-threaded cooperative scheduling model
// used by internal/session and internal/plc.
package watchdog

import (
	"sync"
	"time"
)

// Watchdog is a resettable expiry timer.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	last    time.Time
	expired bool

	onExpire func()
	pollEvery time.Duration
	stop      chan struct{}
	stopped   bool
}

// New creates a Watchdog with the given timeout, fed for the first
// time at construction.
func New(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		panic("watchdog: timeout must be > 0")
	}
	return &Watchdog{
		timeout: timeout,
		last:    time.Now(),
	}
}

// Feed resets the watchdog's clock and clears any latched expiry.
func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = time.Now()
	w.expired = false
}

// Expired reports whether the timeout has elapsed since the last
// Feed(). Once latched true by a poll cycle or by this check, it
// stays true until the next Feed() — callers evaluating trip
// predicates should treat Expired() as sticky within a scan, matching
// RPS latch semantics (spec.md §4.1).
func (w *Watchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expired {
		return true
	}
	if time.Since(w.last) > w.timeout {
		w.expired = true
	}
	return w.expired
}

// Remaining returns the time left before expiry, or zero if already
// expired.
func (w *Watchdog) Remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	left := w.timeout - time.Since(w.last)
	if left < 0 {
		return 0
	}
	return left
}

// Start launches a background poll loop that calls onExpire exactly
// once on the edge from not-expired to expired. The loop exits when
// Stop() is called. pollEvery should be materially smaller than the
// watchdog's timeout; callers typically use a quarter to a tenth of
// it.
func (w *Watchdog) Start(pollEvery time.Duration, onExpire func()) {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		panic("watchdog: Start called twice")
	}
	w.pollEvery = pollEvery
	w.onExpire = onExpire
	w.stop = make(chan struct{})
	stop := w.stop
	w.mu.Unlock()

	go w.pollLoop(stop)
}

func (w *Watchdog) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	wasExpired := false
	for {
		select {
		case <-ticker.C:
			expired := w.Expired()
			if expired && !wasExpired && w.onExpire != nil {
				w.onExpire()
			}
			wasExpired = expired
		case <-stop:
			return
		}
	}
}

// Stop halts the background poll loop started by Start(). Safe to
// call even if Start() was never called, and safe to call more than
// once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop == nil || w.stopped {
		return
	}
	close(w.stop)
	w.stopped = true
}
