package control

import "math"

// PIDGains are the tunable constants for the CHARGE and GEN_RATE
// control loops (spec.md §4.4.3). Kd is carried as a reserved,
// always-zero-weighted field — per spec.md §9's resolution of the
// "Kd coded but multiplied by zero" open question, it is never
// applied.
type PIDGains struct {
	Kp float64
	Ki float64
	Kd float64
}

// pidLoop is the anti-windup-by-saturation integrator shared by
// CHARGE (matrix charge target) and GEN_RATE (generation rate
// target), per spec.md §4.4.3.
type pidLoop struct {
	gains           PIDGains
	maxBurnCombined float64

	accumulator float64
	lastError   float64
	saturated   bool

	haveLastTime bool
	started      bool
	initialRamp  bool
	waitingRamp  bool
}

func newPIDLoop(gains PIDGains, maxBurnCombined float64) *pidLoop {
	return &pidLoop{gains: gains, maxBurnCombined: maxBurnCombined}
}

// reset clears integrator state, used when re-entering CHARGE/GEN_RATE
// or when a ramp completes and integration resumes (spec.md §4.4.3
// "time_start and accumulator reset at that moment").
func (p *pidLoop) reset() {
	p.accumulator = 0
	p.lastError = 0
	p.saturated = false
	p.haveLastTime = false
	p.started = false
	p.initialRamp = false
	p.waitingRamp = false
}

// step advances the PID loop by one sample. target and measured are
// in the same engineering units (charge J or generation rate);
// chargeConversion scales both into burn-rate space per spec.md
// §4.4.3. dtSeconds is the elapsed time since the previous step; the
// very first call after reset contributes zero to the accumulator and
// only initializes internal bookkeeping.
//
// Returns the clamped setpoint in mB/t (sp_c) and whether this is the
// very first call since reset. The first call also sets initial_ramp
// and waiting_on_ramp itself (spec.md §4.4.3).
func (p *pidLoop) step(target, measured, chargeConversion, dtSeconds float64) (spC float64, firstCall bool) {
	if chargeConversion <= 0 {
		chargeConversion = 1
	}

	errNorm := (target - measured) / chargeConversion

	firstCall = !p.started
	if firstCall {
		p.started = true
		p.initialRamp = true
		p.waitingRamp = true
		// spec.md §9: first-call setpoint is the already-normalized
		// error, clamped, with PID taking over from the next tick.
		spR := errNorm
		spC = clamp(spR, 0, p.maxBurnCombined)
		p.saturated = spR != spC
		p.lastError = errNorm
		return spC, true
	}

	if !p.saturated {
		p.accumulator += (measured / chargeConversion) * dtSeconds
	}

	setpoint := p.gains.Kp*errNorm + p.gains.Ki*p.accumulator
	spR := math.Round(setpoint*10) / 10
	spC = clamp(spR, 0, p.maxBurnCombined)
	p.saturated = spR != spC
	p.lastError = errNorm

	return spC, false
}

// rampSettled is called once all units report ramp complete following
// a step; it clears waitingRamp and resets accumulator/time tracking
// so integration resumes cleanly (spec.md §4.4.3).
func (p *pidLoop) rampSettled() {
	p.waitingRamp = false
	p.initialRamp = false
	p.accumulator = 0
	p.haveLastTime = false
}

func (p *pidLoop) isWaitingOnRamp() bool { return p.waitingRamp }
func (p *pidLoop) isSaturated() bool     { return p.saturated }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
