package wire

import (
	"sync/atomic"

	"github.com/reactorctl/reactorctl/internal/session"
)

// SessionSink adapts a Session[Packet] into unit.CommandSink, encoding
// each command as a PLC_CMD packet on the session's outbound queue.
type SessionSink struct {
	senderID string
	seq      atomic.Uint64
	sess     *session.Session[Packet]
}

// NewSessionSink builds a SessionSink that pushes PLC_CMD packets onto
// sess's outbound queue, stamped with senderID.
func NewSessionSink(senderID string, sess *session.Session[Packet]) *SessionSink {
	return &SessionSink{senderID: senderID, sess: sess}
}

func (s *SessionSink) next() uint64 {
	return s.seq.Add(1)
}

// SetSetpoint implements unit.CommandSink.
func (s *SessionSink) SetSetpoint(enable bool, burnRate float64, ramp bool) {
	s.sess.PushOutbound(New(s.senderID, s.next(), ClassPLCCmd, map[string]any{
		"cmd":       "setpoint",
		"enable":    enable,
		"burn_rate": burnRate,
		"ramp":      ramp,
	}))
}

// SCRAM implements unit.CommandSink.
func (s *SessionSink) SCRAM() {
	s.sess.PushOutbound(New(s.senderID, s.next(), ClassPLCCmd, map[string]any{
		"cmd": "scram",
	}))
}

// Reset implements unit.CommandSink.
func (s *SessionSink) Reset() {
	s.sess.PushOutbound(New(s.senderID, s.next(), ClassPLCCmd, map[string]any{
		"cmd": "reset",
	}))
}
