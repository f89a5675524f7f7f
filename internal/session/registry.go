package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/queue"
)

// Registry owns the set of connected sessions, preserving insertion
// order for iteration (spec.md §4.3 "Registry operations").
type Registry[T any] struct {
	mu       sync.Mutex
	log      *zap.Logger
	sessions map[string]*Session[T] // remote addr -> session
	order    []string                // insertion order of remote addrs

	queueCapacity   int
	watchdogTimeout time.Duration
	dropCounter     queue.DropCounter
}

// NewRegistry creates an empty Registry. New sessions created via
// GetOrCreate use queueCapacity and watchdogTimeout as their defaults.
func NewRegistry[T any](queueCapacity int, watchdogTimeout time.Duration, dropCounter queue.DropCounter, log *zap.Logger) *Registry[T] {
	return &Registry[T]{
		log:             log,
		sessions:        make(map[string]*Session[T]),
		queueCapacity:   queueCapacity,
		watchdogTimeout: watchdogTimeout,
		dropCounter:     dropCounter,
	}
}

// GetOrCreate returns the existing session for remoteAddr, or creates
// one if none exists or the existing one is closed (spec.md §3
// "Sessions are created on first packet from a peer").
func (r *Registry[T]) GetOrCreate(remoteAddr string) *Session[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[remoteAddr]; ok && !s.Closed() {
		return s
	}

	s := New[T](remoteAddr, r.queueCapacity, r.watchdogTimeout, r.dropCounter, r.log)
	if _, existed := r.sessions[remoteAddr]; !existed {
		r.order = append(r.order, remoteAddr)
	}
	r.sessions[remoteAddr] = s
	r.log.Info("session created", zap.String("remote_addr", remoteAddr), zap.String("session_id", s.id.String()))
	return s
}

// Get returns the session for remoteAddr, if one exists.
func (r *Registry[T]) Get(remoteAddr string) (*Session[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[remoteAddr]
	return s, ok
}

// DispatchInbound drains every session's inbound queue in insertion
// order, invoking handler for each packet — the "inbound dispatched
// before outbound drains" half of spec.md §5's ordering guarantee.
func (r *Registry[T]) DispatchInbound(handler func(remoteAddr string, p T)) {
	for _, s := range r.snapshot() {
		for {
			p, ok := s.PopInbound()
			if !ok {
				break
			}
			handler(s.remoteAddr, p)
		}
	}
}

// IterateAll calls Iterate on every session in insertion order (spec.md
// §4.3 "iterate_all()").
func (r *Registry[T]) IterateAll(send func(remoteAddr string, p T)) {
	for _, s := range r.snapshot() {
		addr := s.remoteAddr
		s.Iterate(func(p T) { send(addr, p) })
	}
}

// PushToAll queues p onto every open session's outbound queue — used
// for status packets broadcast to whichever peers are currently
// connected, rather than addressed to one (spec.md §6 "PLC_STATUS").
func (r *Registry[T]) PushToAll(p T) int {
	n := 0
	for _, s := range r.snapshot() {
		if s.Closed() {
			continue
		}
		if s.PushOutbound(p) {
			n++
		}
	}
	return n
}

// CheckAllWatchdogs closes every session whose watchdog has expired,
// returning the remote addresses closed this call.
func (r *Registry[T]) CheckAllWatchdogs() []string {
	var closed []string
	for _, s := range r.snapshot() {
		if s.CheckWatchdog() {
			closed = append(closed, s.remoteAddr)
		}
	}
	return closed
}

// FreeAllClosed reaps sessions flagged closed, returning the count
// removed. Must run after iteration, per spec.md §4.3's ordering note.
func (r *Registry[T]) FreeAllClosed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	newOrder := r.order[:0:0]
	for _, addr := range r.order {
		s, ok := r.sessions[addr]
		if !ok {
			continue
		}
		if s.Closed() {
			delete(r.sessions, addr)
			n++
			continue
		}
		newOrder = append(newOrder, addr)
	}
	r.order = newOrder
	return n
}

// CloseAll closes every session gracefully — used on node shutdown
// (spec.md §5 "all sessions are closed gracefully").
func (r *Registry[T]) CloseAll() {
	for _, s := range r.snapshot() {
		s.Close()
	}
}

// Len returns the number of sessions currently tracked (including any
// not yet reaped).
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// snapshot returns the current sessions in insertion order, safe to
// iterate without holding the registry lock (a session may close
// itself concurrently; callers check Closed() as needed).
func (r *Registry[T]) snapshot() []*Session[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session[T], 0, len(r.order))
	for _, addr := range r.order {
		if s, ok := r.sessions[addr]; ok {
			out = append(out, s)
		}
	}
	return out
}
