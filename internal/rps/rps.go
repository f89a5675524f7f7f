// Package rps — rps.go
//
// Reactor Protection System: a deterministic safety state machine that
// continuously evaluates a fixed trip set against a reactor snapshot
// and latches SCRAM on the first trip that becomes true (spec.md
// §4.1).
//
// State transition graph:
//
//	IDLE ──(any trip predicate true)──→ TRIPPED
//	TRIPPED ──(reset(), all predicates false)──→ IDLE
//
// No other transitions exist. TRIPPED never auto-clears — it requires
// an explicit Reset() call, and Reset() only succeeds if every
// predicate currently reads false.
//
// Failure semantics: if the device cannot be read, the fault
// predicate becomes true and SCRAM is latched; Status() continues to
// report the last known flag vector (spec.md §4.1 "Failure
// semantics").
package rps

import (
	"sync"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device"
	"github.com/reactorctl/reactorctl/internal/types"
)

// Snapshot is the set of externally-observed conditions the RPS scans
// on each call, beyond what it reads directly off the reactor device.
type Snapshot struct {
	Manual    bool // operator pushed SCRAM
	Automatic bool // supervisor requested an auto-SCRAM
	SysFail   bool // PLC reports degraded init
	Timeout   bool // PLC's server watchdog expired
}

// Status is the exported flag vector (spec.md §4.1 "status()").
type Status struct {
	Flags     map[types.TripName]bool
	Tripped   bool
	FirstTrip types.TripName // "" if not tripped
	Manual    bool
}

// RPS is a single reactor's protection system.
type RPS struct {
	mu sync.Mutex

	reactor device.Reactor
	cfg     config.RPSConfig
	log     *zap.Logger

	flags     map[types.TripName]bool
	tripped   bool
	firstTrip types.TripName
	manual    bool
}

// New constructs an RPS bound to a reactor device. Per spec.md §3
// "Lifecycles," a new RPS is constructed on PLC boot and whenever the
// reactor device is re-mounted — callers should discard and recreate
// the RPS in that case rather than reuse one across a remount.
func New(reactor device.Reactor, cfg config.RPSConfig, log *zap.Logger) *RPS {
	return &RPS{
		reactor: reactor,
		cfg:     cfg,
		log:     log,
		flags:   make(map[types.TripName]bool, len(types.AllTrips)),
	}
}

// evaluate computes the current trip predicate vector without
// mutating state. Must be called with mu held.
func (r *RPS) evaluate(snap Snapshot) map[types.TripName]bool {
	active, forceDisabled, criticalAlarm, readable := r.reactor.GetStatus()
	_ = active
	_ = criticalAlarm

	flags := make(map[types.TripName]bool, len(types.AllTrips))

	if !readable {
		flags[types.TripFault] = true
		// Device readings are unavailable: carry the device-derived
		// predicates over from the previous scan and evaluate the rest
		// from the caller-supplied snapshot.
		for _, name := range []types.TripName{types.TripDamageCritical, types.TripHighTemp, types.TripNoCoolant, types.TripFullWaste, types.TripHeatedCoolantBack, types.TripNoFuel} {
			flags[name] = r.flags[name]
		}
		flags[types.TripTimeout] = snap.Timeout
		flags[types.TripManual] = snap.Manual
		flags[types.TripAutomatic] = snap.Automatic
		flags[types.TripSysFail] = snap.SysFail
		flags[types.TripForceDisabled] = forceDisabled
		return flags
	}

	flags[types.TripDamageCritical] = r.reactor.GetDamagePercent() >= 100
	flags[types.TripHighTemp] = r.reactor.GetTemperature() >= r.cfg.HighTempCeilingK
	flags[types.TripNoCoolant] = r.reactor.GetCoolant() < r.cfg.LowCoolantFill
	flags[types.TripFullWaste] = r.reactor.GetWaste() >= r.cfg.HighWasteFill
	flags[types.TripHeatedCoolantBack] = r.reactor.GetHeatedCoolant() >= r.cfg.HighHeatedCoolantFill
	flags[types.TripNoFuel] = r.reactor.GetFuel() <= 0
	flags[types.TripFault] = false
	flags[types.TripTimeout] = snap.Timeout
	flags[types.TripManual] = snap.Manual
	flags[types.TripAutomatic] = snap.Automatic
	flags[types.TripSysFail] = snap.SysFail
	flags[types.TripForceDisabled] = forceDisabled

	return flags
}

// Scan evaluates every trip predicate against the current device
// reading plus the supplied out-of-band Snapshot, and returns
// (tripped, firstTrip). Idempotent with respect to calling frequency:
// calling Scan repeatedly while already tripped does not change
// firstTrip or re-invoke SCRAM(). On the untripped->tripped edge, the
// device's SCRAM() primitive is invoked exactly once.
func (r *RPS) Scan(snap Snapshot) (bool, types.TripName) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flags = r.evaluate(snap)
	r.manual = snap.Manual

	if r.tripped {
		return true, r.firstTrip
	}

	for _, name := range types.AllTrips {
		if r.flags[name] {
			r.tripped = true
			r.firstTrip = name
			r.reactor.SCRAM()
			r.log.Warn("RPS tripped",
				zap.String("trip", string(name)))
			return true, name
		}
	}

	return false, ""
}

// Reset clears the latch only if every predicate currently reads
// false. Returns true on success. The caller is responsible for
// calling Scan (or equivalent) first so flags reflect the present
// reading, not a stale one.
func (r *RPS) Reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range types.AllTrips {
		if r.flags[name] {
			return false
		}
	}

	r.tripped = false
	r.firstTrip = ""
	r.manual = false
	r.log.Info("RPS reset")
	return true
}

// Tripped reports whether the latch is currently set.
func (r *RPS) Tripped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tripped
}

// Status exports the full flag vector and first_trip tag, stable
// until the next successful Reset.
func (r *RPS) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	flags := make(map[types.TripName]bool, len(r.flags))
	for k, v := range r.flags {
		flags[k] = v
	}
	return Status{
		Flags:     flags,
		Tripped:   r.tripped,
		FirstTrip: r.firstTrip,
		Manual:    r.manual,
	}
}
