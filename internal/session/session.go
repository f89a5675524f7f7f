// Package session implements the per-peer session lifecycle and
// registry that sit behind the supervisor's PLC, RTU, and coordinator
// connections (spec.md §4.3).
//
// A Session owns a bounded inbound queue (packets received from the
// peer, awaiting dispatch to the owning subsystem) and a bounded
// outbound queue (packets queued to send), plus a liveness watchdog.
// The Registry tracks sessions by remote address, preserving
// insertion order for iteration, and reaps closed sessions at a
// defined point each tick (spec.md §5 "Ordering guarantees").
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/queue"
	"github.com/reactorctl/reactorctl/internal/watchdog"
)

// Session is a single peer's connection state. T is the message type
// carried on the wire (normally wire.Packet); the type parameter lets
// tests exercise the registry with plain fakes.
type Session[T any] struct {
	mu sync.Mutex

	id         uuid.UUID
	remoteAddr string
	log        *zap.Logger

	inbound  *queue.Queue[T]
	outbound *queue.Queue[T]
	wd       *watchdog.Watchdog

	seqIn  uint64
	seqOut uint64

	lastKeepAlive time.Time
	closed        bool
}

// New creates a Session for remoteAddr. queueCapacity bounds both the
// inbound and outbound queues; watchdogTimeout is the inbound-silence
// timeout that trips Close() via CheckWatchdog.
func New[T any](remoteAddr string, queueCapacity int, watchdogTimeout time.Duration, counter queue.DropCounter, log *zap.Logger) *Session[T] {
	return &Session[T]{
		id:            uuid.New(),
		remoteAddr:    remoteAddr,
		log:           log,
		inbound:       queue.New[T]("session_inbound", queueCapacity, counter),
		outbound:      queue.New[T]("session_outbound", queueCapacity, counter),
		wd:            watchdog.New(watchdogTimeout),
		lastKeepAlive: time.Now(),
	}
}

// ID returns the session's unique identifier — used to disambiguate a
// reconnecting peer at the same address from its predecessor.
func (s *Session[T]) ID() uuid.UUID { return s.id }

// RemoteAddr returns the peer address this session was created for.
func (s *Session[T]) RemoteAddr() string { return s.remoteAddr }

// OnPacket enqueues an inbound packet and feeds the watchdog. Returns
// false if the session is already closed (the packet is discarded) or
// if the inbound queue was full (the packet is dropped).
func (s *Session[T]) OnPacket(p T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.seqIn++
	s.mu.Unlock()

	s.wd.Feed()
	return s.inbound.Push(p)
}

// PopInbound removes the oldest inbound packet without blocking.
func (s *Session[T]) PopInbound() (T, bool) {
	return s.inbound.TryPop()
}

// PushOutbound stages a packet to send on the next Iterate. Returns
// false if the session is closed or the outbound queue is full.
func (s *Session[T]) PushOutbound(p T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.seqOut++
	s.mu.Unlock()
	return s.outbound.Push(p)
}

// Iterate drains the outbound queue, invoking send for each packet in
// FIFO order, and records the keep-alive tick (spec.md §4.3
// "iterate() drains outbound queue, processes timers").
func (s *Session[T]) Iterate(send func(T)) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	for {
		p, ok := s.outbound.TryPop()
		if !ok {
			break
		}
		send(p)
	}

	s.mu.Lock()
	s.lastKeepAlive = time.Now()
	s.mu.Unlock()
}

// CheckWatchdog closes the session if its inbound-silence watchdog
// has expired, returning true if the session was closed by this call.
func (s *Session[T]) CheckWatchdog() bool {
	if !s.wd.Expired() {
		return false
	}
	s.Close()
	return true
}

// NeedsKeepAlive reports whether longer than interval has elapsed
// since the last Iterate call, meaning a keep-alive packet should be
// queued (spec.md §6 "keep-alive cadence <= watchdog/2").
func (s *Session[T]) NeedsKeepAlive(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastKeepAlive) >= interval
}

// Close idempotently marks the session closed and stops its
// watchdog's background poll loop, if any was started.
func (s *Session[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wd.Stop()
	s.log.Info("session closed", zap.String("remote_addr", s.remoteAddr), zap.String("session_id", s.id.String()))
}

// Closed reports whether Close has been called.
func (s *Session[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Drain discards every queued inbound and outbound packet. Used
// during graceful shutdown once a session's owning subsystem has
// stopped consuming it.
func (s *Session[T]) Drain() {
	s.inbound.Drain()
	s.outbound.Drain()
}
