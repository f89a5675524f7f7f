package session

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetOrCreatePreservesInsertionOrder(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	r.GetOrCreate("peer-a")
	r.GetOrCreate("peer-b")
	r.GetOrCreate("peer-c")

	var order []string
	r.IterateAll(func(addr string, p int) {})
	for _, s := range r.snapshot() {
		order = append(order, s.RemoteAddr())
	}
	if len(order) != 3 || order[0] != "peer-a" || order[1] != "peer-b" || order[2] != "peer-c" {
		t.Fatalf("expected insertion order [peer-a peer-b peer-c], got %v", order)
	}
}

func TestGetOrCreateReusesOpenSession(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	s1 := r.GetOrCreate("peer-a")
	s2 := r.GetOrCreate("peer-a")
	if s1 != s2 {
		t.Fatal("expected the same session to be reused while open")
	}
}

func TestGetOrCreateReplacesClosedSession(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	s1 := r.GetOrCreate("peer-a")
	s1.Close()
	s2 := r.GetOrCreate("peer-a")
	if s1 == s2 {
		t.Fatal("expected a fresh session to replace a closed one")
	}
	if s1.ID() == s2.ID() {
		t.Fatal("expected distinct session IDs to disambiguate reconnects")
	}
}

func TestDispatchInboundBeforeIterateAll(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	s := r.GetOrCreate("peer-a")
	s.OnPacket(42)

	var inboundSeen, outboundSeen int
	r.DispatchInbound(func(addr string, p int) { inboundSeen = p })
	s.PushOutbound(99)
	r.IterateAll(func(addr string, p int) { outboundSeen = p })

	if inboundSeen != 42 {
		t.Fatalf("expected inbound dispatch to see 42, got %d", inboundSeen)
	}
	if outboundSeen != 99 {
		t.Fatalf("expected outbound iterate to see 99, got %d", outboundSeen)
	}
}

func TestFreeAllClosedReapsOnlyClosedSessions(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	r.GetOrCreate("peer-a")
	s2 := r.GetOrCreate("peer-b")
	s2.Close()

	if r.Len() != 2 {
		t.Fatalf("expected 2 tracked sessions before reap, got %d", r.Len())
	}
	n := r.FreeAllClosed()
	if n != 1 {
		t.Fatalf("expected 1 session reaped, got %d", n)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 tracked session after reap, got %d", r.Len())
	}
}

func TestPushToAllDeliversToEveryOpenSession(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	r.GetOrCreate("peer-a")
	s2 := r.GetOrCreate("peer-b")
	s2.Close()

	n := r.PushToAll(7)
	if n != 1 {
		t.Fatalf("expected 1 open session to receive the push, got %d", n)
	}
}

func TestCloseAllClosesEverySession(t *testing.T) {
	r := NewRegistry[int](4, time.Second, nil, zap.NewNop())
	r.GetOrCreate("peer-a")
	r.GetOrCreate("peer-b")
	r.CloseAll()

	for _, s := range r.snapshot() {
		if !s.Closed() {
			t.Fatalf("expected session %s to be closed", s.RemoteAddr())
		}
	}
}
