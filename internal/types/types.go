// Package types — types.go
//
// Shared data model for the reactor control and protection core: the
// tagged structs and enumerations that flow between the device shims,
// the RPS, the PLC control loop, the reactor-unit aggregator, and the
// facility controller.
//
// Dynamic table-as-record source values become typed structs here;
// mode and trip-reason vocabularies become Go enumerations (see
// spec.md §9 "Design notes").

package types

import "fmt"

// ReactorSnapshot is the telemetry read from a single reactor device
// on each poll (spec.md §3 "Reactor telemetry snapshot").
type ReactorSnapshot struct {
	Status             bool    // device-reported active/enabled flag
	FuelFill           float64 // [0,1]
	CoolantFill        float64 // [0,1]
	WasteFill          float64 // [0,1]
	HeatedCoolantFill  float64 // [0,1]
	TemperatureK       float64
	DamagePercent      float64 // [0,100]
	BoilRate           float64
	BurnRate           float64 // mB/t, as read from the device
	EnvironmentalLoss  float64
	ForceDisabled      bool // device reports itself disabled
	Readable           bool // false if the device could not be polled
	CriticalAlarm      bool // device-local critical alarm, consumed by the facility controller
}

// ControlRecord is the per-unit control record tracked by the facility
// controller (spec.md §3 "Reactor control record (per unit)").
// BR10/LimBR10 are tenths of mB/t, per spec.md §4.1.
type ControlRecord struct {
	UnitID      int
	BR10        int64 // current burn-rate setpoint, tenths of mB/t, >= 0
	LimBR10     int64 // operator-configured maximum, tenths of mB/t
	BladeCount  int
	Ready       bool
	Degraded    bool
}

// MatrixSnapshot is the induction-matrix telemetry (spec.md §3
// "Induction-matrix snapshot").
type MatrixSnapshot struct {
	Formed     bool
	Energy     float64
	MaxEnergy  float64
	InputRate  float64
	OutputRate float64
}

// Fill returns energy/max energy, or 0 if the matrix is not formed or
// MaxEnergy is zero.
func (m MatrixSnapshot) Fill() float64 {
	if !m.Formed || m.MaxEnergy <= 0 {
		return 0
	}
	return m.Energy / m.MaxEnergy
}

// TripName identifies an RPS trip predicate (spec.md §4.1).
type TripName string

const (
	TripDamageCritical    TripName = "dmg_crit"
	TripHighTemp          TripName = "high_temp"
	TripNoCoolant         TripName = "no_coolant"
	TripFullWaste         TripName = "full_waste"
	TripHeatedCoolantBack TripName = "heated_coolant_backup"
	TripNoFuel            TripName = "no_fuel"
	TripFault             TripName = "fault"
	TripTimeout           TripName = "timeout"
	TripManual            TripName = "manual"
	TripAutomatic         TripName = "automatic"
	TripSysFail           TripName = "sys_fail"
	TripForceDisabled     TripName = "force_disabled"
)

// AllTrips is the fixed trip set evaluated by the RPS on every scan,
// in evaluation order. Order only affects which name is recorded as
// first_trip when multiple predicates become true on the same scan.
var AllTrips = []TripName{
	TripDamageCritical,
	TripHighTemp,
	TripNoCoolant,
	TripFullWaste,
	TripHeatedCoolantBack,
	TripNoFuel,
	TripFault,
	TripTimeout,
	TripManual,
	TripAutomatic,
	TripSysFail,
	TripForceDisabled,
}

// Mode is the facility controller's operating mode (spec.md §3
// "Facility state").
type Mode uint8

const (
	ModeInactive Mode = iota
	ModeSimple
	ModeBurnRate
	ModeCharge
	ModeGenRate
	ModeMatrixFaultIdle
	ModeUnitAlarmIdle
)

func (m Mode) String() string {
	switch m {
	case ModeInactive:
		return "INACTIVE"
	case ModeSimple:
		return "SIMPLE"
	case ModeBurnRate:
		return "BURN_RATE"
	case ModeCharge:
		return "CHARGE"
	case ModeGenRate:
		return "GEN_RATE"
	case ModeMatrixFaultIdle:
		return "MATRIX_FAULT_IDLE"
	case ModeUnitAlarmIdle:
		return "UNIT_ALARM_IDLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// AutoSCRAMReason identifies the cause of an automatic SCRAM latch
// (spec.md §3 "ascram_reason").
type AutoSCRAMReason uint8

const (
	ASCRAMNone AutoSCRAMReason = iota
	ASCRAMMatrixDC
	ASCRAMMatrixFill
	ASCRAMCritAlarm
)

func (r AutoSCRAMReason) String() string {
	switch r {
	case ASCRAMNone:
		return "NONE"
	case ASCRAMMatrixDC:
		return "MATRIX_DC"
	case ASCRAMMatrixFill:
		return "MATRIX_FILL"
	case ASCRAMCritAlarm:
		return "CRIT_ALARM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
	}
}

// PowerPerBlade is the constant energy-per-blade-per-mB/t conversion
// factor used to derive charge_conversion (spec.md §4.4.2).
const PowerPerBlade = 2856.0
