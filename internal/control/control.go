// Package control implements the facility process controller: the
// mode machine, PID regulator, burn-rate allocation across priority
// groups, and automatic SCRAM handling run by the supervisor (spec.md
// §4.4).
package control

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/types"
)

// ControlledUnit is the facility-side view of a reactor unit. Satisfied
// by *internal/unit.Unit; declared here so control depends only on the
// method set it actually calls (and tests can supply fakes).
type ControlledUnit interface {
	ID() int
	BladeCount() int
	AEngage()
	ADisengage()
	AScram()
	SetBR10(tenths int64)
	ACommitBR10(ramp bool)
	ARampComplete(epsilonTenths float64) bool
	AGetEffectiveLimit() int64
	ACondRPSReset()
	AckAll()
	HasCriticalAlarm() bool
	GetControlInf() types.ControlRecord
	SetBurnLimit(tenths int64, facilityMode types.Mode) error
	Update(snap types.ReactorSnapshot, critical bool)
}

// TickResult summarizes the outcome of one controller tick, returned
// for logging, metrics, and status broadcast.
type TickResult struct {
	Mode         types.Mode
	Saturated    bool
	Residual     int64
	ASCRAM       bool
	ASCRAMReason types.AutoSCRAMReason
	StatusText   string
}

// Controller is the facility process controller.
type Controller struct {
	mu  sync.Mutex
	log *zap.Logger
	cfg config.ControlConfig

	rampEpsilonTenths float64

	units    map[int]ControlledUnit
	groupMap map[int]int // unit id -> 0..4

	mode       types.Mode
	lastMode   types.Mode
	returnMode types.Mode
	modeSet    *types.Mode // staged request, nil if none pending

	chargeTarget  float64
	genRateTarget float64
	burnTarget    float64

	chargePID  *pidLoop
	genRatePID *pidLoop

	chargeAvg  *movingAverage
	inflowAvg  *movingAverage
	outflowAvg *movingAverage

	ascram       bool
	ascramReason types.AutoSCRAMReason
	statusText   string

	lastTime     time.Time
	haveLastTime bool
}

// New constructs a Controller. rampEpsilonTenths is the threshold
// (tenths of mB/t) below which all assigned units must converge
// before CHARGE/GEN_RATE integration resumes after a ramp (spec.md
// §4.4.3); it is ordinarily config.PLCConfig.RampEpsilon.
func New(cfg config.ControlConfig, rampEpsilonTenths float64, log *zap.Logger) *Controller {
	return &Controller{
		log:               log,
		cfg:               cfg,
		rampEpsilonTenths: rampEpsilonTenths,
		units:             make(map[int]ControlledUnit),
		groupMap:          make(map[int]int),
		mode:              types.ModeInactive,
		chargePID:         newPIDLoop(PIDGains{Kp: cfg.Kp, Ki: cfg.Ki, Kd: cfg.Kd}, cfg.MaxBurnCombined),
		genRatePID:        newPIDLoop(PIDGains{Kp: cfg.Kp, Ki: cfg.Ki, Kd: cfg.Kd}, cfg.MaxBurnCombined),
		chargeAvg:         newMovingAverage(cfg.MovingAverageWindow),
		inflowAvg:         newMovingAverage(cfg.MovingAverageWindow),
		outflowAvg:        newMovingAverage(cfg.MovingAverageWindow),
	}
}

// AddUnit registers a unit under the given priority group (0 =
// independent, not facility-controlled; 1..4 = priority groups, lower
// first).
func (c *Controller) AddUnit(u ControlledUnit, group int) error {
	if group < 0 || group > 4 {
		return fmt.Errorf("control: group must be in [0,4], got %d", group)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[u.ID()] = u
	c.groupMap[u.ID()] = group
	return nil
}

// SetGroup reassigns a unit's priority group.
func (c *Controller) SetGroup(unitID, group int) error {
	if group < 0 || group > 4 {
		return fmt.Errorf("control: group must be in [0,4], got %d", group)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.units[unitID]; !ok {
		return fmt.Errorf("control: unknown unit %d", unitID)
	}
	c.groupMap[unitID] = group
	return nil
}

// GetGroup returns a unit's current priority group.
func (c *Controller) GetGroup(unitID int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groupMap[unitID]
}

// SetUnitLimit forwards a burn-limit change request to the named
// unit, gated (by the unit itself) to INACTIVE mode only.
func (c *Controller) SetUnitLimit(unitID int, tenths int64) error {
	c.mu.Lock()
	u, ok := c.units[unitID]
	mode := c.mode
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("control: unknown unit %d", unitID)
	}
	return u.SetBurnLimit(tenths, mode)
}

// UpdateUnit feeds a freshly received reactor telemetry snapshot to
// the named unit (spec.md §4.5 "unit telemetry update"), as received
// over the wire in a PLC_STATUS packet. Unknown unit IDs are ignored:
// a packet can arrive for a unit briefly between registry reap and
// redial.
func (c *Controller) UpdateUnit(unitID int, snap types.ReactorSnapshot, critical bool) {
	c.mu.Lock()
	u, ok := c.units[unitID]
	c.mu.Unlock()
	if !ok {
		return
	}
	u.Update(snap, critical)
}

// Units returns the control record of every registered unit, ordered
// by unit ID, for status export (spec.md §6 "COORD_CMD ... ack").
func (c *Controller) Units() []types.ControlRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]types.ControlRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.units[id].GetControlInf())
	}
	return out
}

// prioDefs returns units in groups 1..4, each sorted ascending by
// lim_br10 with ties broken by declaration (unit id) order, matching
// spec.md §4.4.1's stability requirement.
func (c *Controller) prioDefs() [4][]ControlledUnit {
	var defs [4][]ControlledUnit
	ids := make([]int, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		g := c.groupMap[id]
		if g < 1 || g > 4 {
			continue
		}
		defs[g-1] = append(defs[g-1], c.units[id])
	}
	for g := 0; g < 4; g++ {
		units := defs[g]
		sort.SliceStable(units, func(i, j int) bool {
			return units[i].AGetEffectiveLimit() < units[j].AGetEffectiveLimit()
		})
	}
	return defs
}

// RequestMode stages a mode change, applied at the start of the next
// Tick.
func (c *Controller) RequestMode(m types.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mm := m
	c.modeSet = &mm
}

// SetChargeTarget sets the operator target for CHARGE mode (energy units).
func (c *Controller) SetChargeTarget(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chargeTarget = v
}

// SetGenRateTarget sets the operator target for GEN_RATE mode.
func (c *Controller) SetGenRateTarget(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genRateTarget = v
}

// SetBurnRateTarget sets the operator target aggregate burn rate
// (mB/t) for BURN_RATE mode.
func (c *Controller) SetBurnRateTarget(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.burnTarget = v
}

// Mode returns the currently active mode.
func (c *Controller) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ASCRAM returns the current automatic-SCRAM latch and reason.
func (c *Controller) ASCRAM() (bool, types.AutoSCRAMReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ascram, c.ascramReason
}

// OperatorResetAlarm clears a UNIT_ALARM_IDLE hold. No-op unless
// currently in that mode (spec.md §4.4.4 "requires operator reset").
func (c *Controller) OperatorResetAlarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != types.ModeUnitAlarmIdle {
		return
	}
	c.ascram = false
	c.ascramReason = types.ASCRAMNone
	c.statusText = ""
	c.mode = types.ModeInactive
	for _, u := range c.units {
		u.AckAll()
		u.ACondRPSReset()
	}
}

// chargeConversion returns the total blade-count-derived conversion
// factor across units currently assigned to a facility-controlled
// group (spec.md §4.4.2).
func (c *Controller) chargeConversion() float64 {
	total := 0
	for id, g := range c.groupMap {
		if g == 0 {
			continue
		}
		if u, ok := c.units[id]; ok {
			total += u.BladeCount()
		}
	}
	return float64(total) * types.PowerPerBlade
}

// Tick advances the controller by one cycle: applies any staged mode
// transition, evaluates automatic SCRAM, then runs the active mode's
// control law. now must be monotonic across calls.
func (c *Controller) Tick(now time.Time, matrix types.MatrixSnapshot) TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chargeAvg.push(matrix.Energy)
	c.inflowAvg.push(matrix.InputRate)
	c.outflowAvg.push(matrix.OutputRate)

	if c.modeSet != nil {
		c.applyModeTransition(*c.modeSet)
		c.modeSet = nil
	}

	c.evaluateAutoSCRAM(matrix)

	var residual int64
	saturated := false

	switch c.mode {
	case types.ModeInactive, types.ModeMatrixFaultIdle, types.ModeUnitAlarmIdle:
		// No fission demand in these modes; allocation is not run.
	case types.ModeSimple:
		residual, saturated = c.runSimple()
	case types.ModeBurnRate:
		residual, saturated = c.runAllocateOnly(c.burnTarget, true)
	case types.ModeCharge:
		residual, saturated = c.runPID(c.chargePID, c.chargeTarget, matrix.Energy, now)
	case types.ModeGenRate:
		residual, saturated = c.runPID(c.genRatePID, c.genRateTarget, matrix.OutputRate, now)
	}

	return TickResult{
		Mode:         c.mode,
		Saturated:    saturated,
		Residual:     residual,
		ASCRAM:       c.ascram,
		ASCRAMReason: c.ascramReason,
		StatusText:   c.statusText,
	}
}

// applyModeTransition performs the entry/exit bookkeeping of spec.md
// §4.4.2 for a requested mode change. Must be called with mu held.
func (c *Controller) applyModeTransition(target types.Mode) {
	if target == c.mode {
		return
	}

	if c.mode == types.ModeInactive && target != types.ModeInactive {
		// Leaving INACTIVE.
		for _, units := range c.prioDefs() {
			for _, u := range units {
				u.AEngage()
			}
		}
		if target != types.ModeMatrixFaultIdle {
			c.ascram = false
			c.ascramReason = types.ASCRAMNone
			c.statusText = ""
		}
		c.chargePID.reset()
		c.genRatePID.reset()
	}

	if target == types.ModeInactive {
		// Entering INACTIVE.
		for _, u := range c.units {
			u.ADisengage()
			u.AScram()
		}
	}

	c.lastMode = c.mode
	c.mode = target
}

func (c *Controller) runSimple() (residual int64, saturated bool) {
	for _, units := range c.prioDefs() {
		for _, u := range units {
			limit := u.AGetEffectiveLimit()
			u.SetBR10(limit)
			u.ACommitBR10(true)
		}
	}
	return 0, true
}

func (c *Controller) runAllocateOnly(targetB float64, ramp bool) (residual int64, saturated bool) {
	residual = c.allocate(targetB, ramp)
	saturated = residual > 0 || targetB >= c.cfg.MaxBurnCombined
	return residual, saturated
}

// allocate distributes targetB (mB/t) across priority groups 1..4 per
// spec.md §4.4.1 and commits each unit's new br10.
func (c *Controller) allocate(targetB float64, ramp bool) int64 {
	unallocated := tenthsFromMBPerTick(targetB)
	var totalResidual int64

	for _, units := range c.prioDefs() {
		if len(units) == 0 {
			continue
		}
		assigned, residual := allocateGroup(units, unallocated)
		for i, u := range units {
			u.SetBR10(assigned[i])
			u.ACommitBR10(ramp)
		}
		unallocated = residual
		totalResidual = residual
	}

	return totalResidual
}

func (c *Controller) runPID(p *pidLoop, target, measured float64, now time.Time) (residual int64, saturated bool) {
	dt := 0.0
	if c.haveLastTime {
		dt = now.Sub(c.lastTime).Seconds()
		if dt < 0 {
			dt = 0
		}
	} else {
		c.haveLastTime = true
	}
	c.lastTime = now

	conv := c.chargeConversion()

	if p.isWaitingOnRamp() {
		allComplete := true
		for _, u := range c.units {
			if c.groupMap[u.ID()] == 0 {
				continue
			}
			if !u.ARampComplete(c.rampEpsilonTenths) {
				allComplete = false
				break
			}
		}
		if allComplete {
			p.rampSettled()
		} else {
			return 0, p.isSaturated()
		}
	}

	spC, _ := p.step(target, measured, conv, dt)
	residual = c.allocate(spC, p.initialRamp)
	return residual, p.isSaturated()
}

// evaluateAutoSCRAM implements spec.md §4.4.4. Must be called with mu held.
func (c *Controller) evaluateAutoSCRAM(matrix types.MatrixSnapshot) {
	switch c.mode {
	case types.ModeInactive, types.ModeUnitAlarmIdle:
		return
	case types.ModeMatrixFaultIdle:
		c.evaluateMatrixFaultIdleExit(matrix)
		return
	}

	fill := matrix.Fill()

	if !matrix.Formed {
		c.tripASCRAM(types.ASCRAMMatrixDC, "matrix absent")
		return
	}
	if fill >= 1.0 || (c.ascramReason == types.ASCRAMMatrixFill && fill > c.cfg.MatrixFillHysteresisLow) {
		c.tripASCRAM(types.ASCRAMMatrixFill, "matrix fill critical")
		return
	}
	if c.anyCriticalAlarm() {
		c.returnMode = c.mode
		c.ascram = true
		c.ascramReason = types.ASCRAMCritAlarm
		c.statusText = "critical unit alarm"
		for _, u := range c.units {
			u.AScram()
		}
		c.mode = types.ModeUnitAlarmIdle
		return
	}
}

func (c *Controller) evaluateMatrixFaultIdleExit(matrix types.MatrixSnapshot) {
	fill := matrix.Fill()

	if !matrix.Formed {
		c.ascramReason = types.ASCRAMMatrixDC
		c.statusText = "matrix absent"
		return
	}
	if fill >= 1.0 || (c.ascramReason == types.ASCRAMMatrixFill && fill > c.cfg.MatrixFillHysteresisLow) {
		c.ascramReason = types.ASCRAMMatrixFill
		c.statusText = "matrix fill critical"
		return
	}
	if c.anyCriticalAlarm() {
		// Special case: a critical alarm during a matrix-fault hold
		// exits to INACTIVE rather than UNIT_ALARM_IDLE (spec.md
		// §4.4.4).
		c.ascram = false
		c.ascramReason = types.ASCRAMNone
		c.statusText = ""
		c.mode = types.ModeInactive
		for _, u := range c.units {
			u.ADisengage()
			u.AScram()
		}
		return
	}

	// Reason cleared: falling edge.
	c.ascram = false
	c.ascramReason = types.ASCRAMNone
	c.statusText = ""
	for _, u := range c.units {
		u.ACondRPSReset()
	}
	c.mode = c.returnMode
}

func (c *Controller) tripASCRAM(reason types.AutoSCRAMReason, text string) {
	if c.ascram && c.ascramReason == reason {
		return // already latched on this reason, no re-trigger
	}
	c.returnMode = c.mode
	c.ascram = true
	c.ascramReason = reason
	c.statusText = text
	for _, u := range c.units {
		u.AScram()
	}
	c.mode = types.ModeMatrixFaultIdle
}

func (c *Controller) anyCriticalAlarm() bool {
	for _, u := range c.units {
		if u.HasCriticalAlarm() {
			return true
		}
	}
	return false
}
