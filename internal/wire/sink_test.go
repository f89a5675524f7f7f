package wire

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/session"
)

func TestSessionSinkSetSetpointEncodesPLCCmd(t *testing.T) {
	s := session.New[Packet]("plc-1:7000", 4, time.Second, nil, zap.NewNop())
	sink := NewSessionSink("supervisor", s)

	sink.SetSetpoint(true, 12.5, true)

	var got Packet
	s.Iterate(func(p Packet) { got = p })

	if got.Class != ClassPLCCmd {
		t.Fatalf("expected ClassPLCCmd, got %v", got.Class)
	}
	if got.Payload["cmd"] != "setpoint" || got.Payload["burn_rate"] != 12.5 {
		t.Fatalf("unexpected payload: %+v", got.Payload)
	}
}

func TestSessionSinkSequenceIncrements(t *testing.T) {
	s := session.New[Packet]("plc-1:7000", 4, time.Second, nil, zap.NewNop())
	sink := NewSessionSink("supervisor", s)

	sink.SetSetpoint(true, 1, false)
	sink.SCRAM()

	var seqs []uint64
	s.Iterate(func(p Packet) { seqs = append(seqs, p.Sequence) })

	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("expected sequences [1 2], got %v", seqs)
	}
}
