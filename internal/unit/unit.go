// Package unit implements the reactor-unit aggregator: the per-unit
// facade the facility controller drives instead of touching a PLC's
// device directly (spec.md §4.5). A Unit holds the control record the
// facility cares about — br10, lim_br10, blade_count, ready, degraded
// — and forwards commands through a CommandSink, which in production
// is backed by the wire protocol's PLC_CMD packets and in tests by an
// in-memory recorder.
package unit

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/types"
)

// CommandSink is how a Unit pushes commands toward its PLC. Production
// code backs this with a session's outbound queue; tests use a
// recording fake.
type CommandSink interface {
	// SetSetpoint requests the PLC apply (enable, burnRate mB/t, ramp)
	// per the setpoint application contract of spec.md §4.2.
	SetSetpoint(enable bool, burnRate float64, ramp bool)
	// SCRAM requests an immediate shutdown.
	SCRAM()
	// Reset requests the PLC clear its RPS latch, conditioned on all
	// trip predicates already reading false (spec.md §4.1).
	Reset()
}

// Unit is the facility-side control record and command facade for a
// single reactor (spec.md §3 "Reactor control record" and §4.5).
type Unit struct {
	mu  sync.Mutex
	log *zap.Logger

	id         int
	sink       CommandSink
	bladeCount int

	limBR10 int64
	br10    int64 // pending/assigned setpoint, tenths of mB/t

	autoEngage bool
	ready      bool
	degraded   bool
	critical   bool
	scrammed   bool // set true by a_scram, cleared by a_engage/ack_all

	rampTarget int64
	lastSnap   types.ReactorSnapshot
	haveSnap   bool
}

// New constructs a Unit. bladeCount and limBR10 (tenths of mB/t) are
// the operator-configured static parameters; limBR10 may be changed
// later via SetBurnLimit, bladeCount is fixed for the Unit's lifetime.
func New(id int, limBR10 int64, bladeCount int, sink CommandSink, log *zap.Logger) *Unit {
	if limBR10 < 0 {
		panic("unit: limBR10 must be >= 0")
	}
	return &Unit{
		id:         id,
		sink:       sink,
		bladeCount: bladeCount,
		limBR10:    limBR10,
		log:        log,
	}
}

// ID returns the unit's identifier.
func (u *Unit) ID() int { return u.id }

// BladeCount returns the configured turbine blade count.
func (u *Unit) BladeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.bladeCount
}

// AEngage engages automatic control: the facility controller may now
// drive this unit's setpoint. Clears any prior scram latch bookkeeping
// (spec.md §4.4.2 "On leaving INACTIVE ... call each unit's a_engage()").
func (u *Unit) AEngage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.autoEngage = true
	u.scrammed = false
	u.rampTarget = 0
	u.br10 = 0
	u.sink.SetSetpoint(true, 0, false)
}

// ADisengage disengages automatic control and drives burn rate to
// zero (spec.md §4.4.2 "On entering INACTIVE ... disengage auto
// control").
func (u *Unit) ADisengage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.autoEngage = false
	u.br10 = 0
	u.sink.SetSetpoint(false, 0, false)
}

// AScram issues a commanded shutdown to this unit as part of a
// facility-wide automatic SCRAM (spec.md §4.4.4). Distinct from
// SCRAM(), which records that the unit shut down on its own.
func (u *Unit) AScram() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.br10 = 0
	u.scrammed = true
	u.sink.SCRAM()
}

// SetBR10 stages the next burn-rate setpoint in tenths of mB/t,
// clamped to [0, lim_br10]. The allocation algorithm (spec.md §4.4.1)
// calls this before ACommitBR10.
func (u *Unit) SetBR10(tenths int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if tenths < 0 {
		tenths = 0
	}
	if tenths > u.limBR10 {
		tenths = u.limBR10
	}
	u.br10 = tenths
}

// ACommitBR10 pushes the currently staged br10 to the PLC. If ramp is
// true the PLC ramps toward it per spec.md §4.2; otherwise it jumps.
func (u *Unit) ACommitBR10(ramp bool) {
	u.mu.Lock()
	br10 := u.br10
	u.rampTarget = br10
	u.mu.Unlock()

	u.sink.SetSetpoint(true, float64(br10)/10.0, ramp)
}

// ARampComplete reports whether the most recently observed telemetry
// (via Update) has converged to the committed target, within the
// same epsilon the PLC uses (spec.md §4.2 "report ramp completion
// once |current-target| < epsilon").
func (u *Unit) ARampComplete(epsilonTenths float64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.haveSnap {
		return false
	}
	observed := u.lastSnap.BurnRate * 10.0
	diff := observed - float64(u.rampTarget)
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilonTenths
}

// AGetEffectiveLimit returns the unit's current burn-rate ceiling in
// tenths of mB/t.
func (u *Unit) AGetEffectiveLimit() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.limBR10
}

// ACondRPSReset requests the PLC clear its RPS latch, but only if this
// unit is not degraded and is not reporting a critical alarm — the
// conditional half of the falling-edge auto-SCRAM handling in spec.md
// §4.4.4.
func (u *Unit) ACondRPSReset() {
	u.mu.Lock()
	ok := !u.degraded && !u.critical
	u.mu.Unlock()
	if ok {
		u.sink.Reset()
	}
}

// SCRAM records that this unit shut down — on its own RPS trip, not
// as a facility-commanded a_scram — so bookkeeping (e.g. br10) stays
// consistent without re-issuing a command.
func (u *Unit) SCRAM() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.br10 = 0
}

// AckAll clears this unit's scrammed-since-trip bookkeeping, used by
// the facility controller once an auto-SCRAM episode is fully
// acknowledged and the unit is re-engaged.
func (u *Unit) AckAll() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.scrammed = false
}

// HasCriticalAlarm reports the last-known critical alarm flag.
func (u *Unit) HasCriticalAlarm() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.critical
}

// WasScrammed reports whether AScram has been called since the last
// AEngage or AckAll — used to verify the invariant that every
// assigned unit receives a_scram() at least once per auto-SCRAM
// episode (spec.md §3 invariants).
func (u *Unit) WasScrammed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.scrammed
}

// GetControlInf returns the unit's current control record (spec.md
// §4.5 "get_control_inf()").
func (u *Unit) GetControlInf() types.ControlRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return types.ControlRecord{
		UnitID:     u.id,
		BR10:       u.br10,
		LimBR10:    u.limBR10,
		BladeCount: u.bladeCount,
		Ready:      u.ready,
		Degraded:   u.degraded,
	}
}

// Update refreshes the unit from the latest reactor telemetry
// snapshot and an out-of-band critical-alarm flag (spec.md §4.5
// "update()"). ready is derived as readable && !forceDisabled;
// degraded as !ready.
func (u *Unit) Update(snap types.ReactorSnapshot, critical bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastSnap = snap
	u.haveSnap = true
	u.ready = snap.Readable && !snap.ForceDisabled
	u.degraded = !u.ready
	u.critical = critical
}

// SetBurnLimit updates lim_br10, enforcing spec.md §4.5's rule that
// the operator-facing limit can only change while the facility is
// INACTIVE.
func (u *Unit) SetBurnLimit(tenths int64, facilityMode types.Mode) error {
	if facilityMode != types.ModeInactive {
		return fmt.Errorf("unit %d: set_burn_limit rejected, facility mode is %s, not INACTIVE", u.id, facilityMode)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if tenths < 0 {
		return fmt.Errorf("unit %d: burn limit must be >= 0, got %d", u.id, tenths)
	}
	u.limBR10 = tenths
	if u.br10 > u.limBR10 {
		u.br10 = u.limBR10
	}
	return nil
}

// AutoEngaged reports whether AEngage has been called without a
// subsequent ADisengage.
func (u *Unit) AutoEngaged() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.autoEngage
}
