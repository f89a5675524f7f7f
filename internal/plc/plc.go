// Package plc implements the reactor-PLC control loop: setpoint
// application, status cadence, and comms watchdog wiring into the RPS
// (spec.md §4.2).
package plc

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device"
	"github.com/reactorctl/reactorctl/internal/rps"
	"github.com/reactorctl/reactorctl/internal/types"
	"github.com/reactorctl/reactorctl/internal/watchdog"
)

// TickResult summarizes one control-loop tick.
type TickResult struct {
	Tripped      bool
	FirstTrip    types.TripName
	CurrentBR10  int64
	RampComplete bool
	PublishStatus bool
}

// Controller is the per-reactor PLC control loop. It owns the comms
// watchdog (inbound-silence timeout) and drives a device through an
// RPS, applying ramp-bounded or immediate setpoints.
type Controller struct {
	mu sync.Mutex

	reactor    device.Reactor
	protection *rps.RPS
	cfg        config.PLCConfig
	log        *zap.Logger
	commsWD    *watchdog.Watchdog

	limBR10     int64
	targetBR10  int64
	currentBR10 int64
	ramp        bool
	enabled     bool

	manual    bool
	automatic bool
	sysFail   bool

	tickCount int
}

// New constructs a Controller. limBR10 is the unit's operator
// configured ceiling in tenths of mB/t, used both to clamp setpoints
// and to compute the per-tick ramp step (spec.md §4.2 "10% of
// lim_br10 per tick").
func New(reactor device.Reactor, protection *rps.RPS, cfg config.PLCConfig, limBR10 int64, log *zap.Logger) *Controller {
	if limBR10 < 0 {
		panic("plc: limBR10 must be >= 0")
	}
	return &Controller{
		reactor:    reactor,
		protection: protection,
		cfg:        cfg,
		limBR10:    limBR10,
		log:        log,
		commsWD:    watchdog.New(cfg.WatchdogTimeout),
	}
}

// FeedComms resets the inbound-silence watchdog; call on every packet
// received from the supervisor.
func (c *Controller) FeedComms() {
	c.commsWD.Feed()
}

// ManualSCRAM latches the operator-initiated SCRAM trip.
func (c *Controller) ManualSCRAM() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = true
}

// RequestAutomaticSCRAM latches the supervisor-initiated SCRAM trip.
func (c *Controller) RequestAutomaticSCRAM() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.automatic = true
}

// SetSysFail sets or clears the degraded-init flag fed to the RPS's
// sys_fail predicate.
func (c *Controller) SetSysFail(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sysFail = v
}

// ApplySetpoint accepts (enable, burnRate mB/t, ramp) per spec.md
// §4.2's setpoint application contract. burnRate is clamped to
// [0, limBR10].
func (c *Controller) ApplySetpoint(enable bool, burnRateMBPerTick float64, ramp bool) {
	tenths := int64(math.Round(burnRateMBPerTick * 10))
	if tenths < 0 {
		tenths = 0
	}
	if tenths > c.limBR10 {
		tenths = c.limBR10
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enable
	c.ramp = ramp
	if !enable {
		c.targetBR10 = 0
	} else {
		c.targetBR10 = tenths
	}
}

// RequestReset attempts to clear the RPS latch, conditioned on all
// trip predicates currently reading false, and clears the locally
// latched manual/automatic/sys_fail flags on success.
func (c *Controller) RequestReset() bool {
	if !c.protection.Reset() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = false
	c.automatic = false
	c.sysFail = false
	return true
}

// Tick advances the control loop by one cycle (nominal 50ms, spec.md
// §5): scans the RPS, applies the setpoint contract, and reports
// whether this tick's status packet should be published.
func (c *Controller) Tick() TickResult {
	c.mu.Lock()
	snap := rps.Snapshot{
		Manual:    c.manual,
		Automatic: c.automatic,
		SysFail:   c.sysFail,
		Timeout:   c.commsWD.Expired(),
	}
	enabled := c.enabled
	target := c.targetBR10
	ramp := c.ramp
	c.mu.Unlock()

	tripped, firstTrip := c.protection.Scan(snap)

	c.mu.Lock()
	defer c.mu.Unlock()

	if tripped || !enabled {
		target = 0
	}

	if tripped {
		// The RPS already invoked the device's SCRAM primitive on the
		// trip edge; just reflect that locally.
		c.currentBR10 = 0
	} else if ramp {
		maxStep := int64(math.Floor(c.cfg.RampFractionPerTick * float64(c.limBR10)))
		if maxStep < 1 {
			maxStep = 1
		}
		diff := target - c.currentBR10
		if diff > maxStep {
			diff = maxStep
		} else if diff < -maxStep {
			diff = -maxStep
		}
		c.currentBR10 += diff
		c.reactor.SetBurnRate(float64(c.currentBR10) / 10.0)
		if c.currentBR10 > 0 {
			c.reactor.Activate()
		}
	} else {
		c.currentBR10 = target
		c.reactor.SetBurnRate(float64(c.currentBR10) / 10.0)
		if c.currentBR10 > 0 {
			c.reactor.Activate()
		}
	}

	c.tickCount++
	publish := c.tickCount%c.cfg.StatusPeriodTicks == 0

	diff := float64(target - c.currentBR10)
	if diff < 0 {
		diff = -diff
	}

	return TickResult{
		Tripped:       tripped,
		FirstTrip:     firstTrip,
		CurrentBR10:   c.currentBR10,
		RampComplete:  diff < c.cfg.RampEpsilon,
		PublishStatus: publish,
	}
}

// RPSStatus exposes the underlying RPS status export (spec.md §4.1
// "status()"), used to build PLC_RPS_STATUS packets.
func (c *Controller) RPSStatus() rps.Status {
	return c.protection.Status()
}
