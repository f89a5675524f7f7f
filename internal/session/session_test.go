package session

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestOnPacketThenPopInbound(t *testing.T) {
	s := New[int]("10.0.0.1:1", 4, time.Second, nil, zap.NewNop())
	if !s.OnPacket(1) {
		t.Fatal("expected OnPacket to succeed")
	}
	v, ok := s.PopInbound()
	if !ok || v != 1 {
		t.Fatalf("expected to pop 1, got %d ok=%v", v, ok)
	}
}

func TestIterateDrainsOutboundInOrder(t *testing.T) {
	s := New[int]("10.0.0.1:1", 4, time.Second, nil, zap.NewNop())
	s.PushOutbound(1)
	s.PushOutbound(2)
	s.PushOutbound(3)

	var got []int
	s.Iterate(func(p int) { got = append(got, p) })

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
}

func TestCheckWatchdogClosesOnExpiry(t *testing.T) {
	s := New[int]("10.0.0.1:1", 4, 10*time.Millisecond, nil, zap.NewNop())
	time.Sleep(25 * time.Millisecond)
	if !s.CheckWatchdog() {
		t.Fatal("expected watchdog expiry to close session")
	}
	if !s.Closed() {
		t.Fatal("expected session closed")
	}
}

func TestOnPacketRejectedAfterClose(t *testing.T) {
	s := New[int]("10.0.0.1:1", 4, time.Second, nil, zap.NewNop())
	s.Close()
	if s.OnPacket(1) {
		t.Fatal("expected OnPacket to fail on closed session")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New[int]("10.0.0.1:1", 4, time.Second, nil, zap.NewNop())
	s.Close()
	s.Close()
}
