package watchdog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNotExpiredImmediatelyAfterNew(t *testing.T) {
	w := New(50 * time.Millisecond)
	if w.Expired() {
		t.Fatal("fresh watchdog should not be expired")
	}
}

func TestExpiresAfterTimeout(t *testing.T) {
	w := New(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	if !w.Expired() {
		t.Fatal("expected watchdog to expire")
	}
}

func TestFeedResetsExpiry(t *testing.T) {
	w := New(15 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	if !w.Expired() {
		t.Fatal("expected expiry before feed")
	}
	w.Feed()
	if w.Expired() {
		t.Fatal("expected feed to clear expiry")
	}
}

func TestExpiredIsSticky(t *testing.T) {
	w := New(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if !w.Expired() {
		t.Fatal("expected expired")
	}
	// Calling Expired again without feeding must still report true.
	if !w.Expired() {
		t.Fatal("expected expired to remain sticky")
	}
}

func TestStartInvokesCallbackOnce(t *testing.T) {
	w := New(10 * time.Millisecond)
	var calls int64
	w.Start(2*time.Millisecond, func() {
		atomic.AddInt64(&calls, 1)
	})
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", calls)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w := New(10 * time.Millisecond)
	w.Start(2*time.Millisecond, func() {})
	w.Stop()
	w.Stop()
}
