// Package device defines the interfaces through which the reactor
// control core consumes physical peripherals (spec.md §6 "Device
// shims (consumed)"). The concrete backends — mounting a real
// multiblock reactor, matrix, or redstone bus — are external
// collaborators per spec.md §1 and are not implemented here; see
// internal/device/simulated for the in-memory stand-in used by tests
// and cmd/reactor-sim.
package device

// Reactor is the uniform view of a fission reactor device.
type Reactor interface {
	SCRAM()
	SetBurnRate(x float64)
	Activate()

	GetTemperature() float64
	GetFuel() float64
	GetCoolant() float64
	GetWaste() float64
	GetHeatedCoolant() float64
	GetDamagePercent() float64
	GetBurnRate() float64
	GetBoilRate() float64
	GetEnvironmentalLoss() float64

	// GetStatus reports (active, forceDisabled, criticalAlarm, readable).
	// readable=false means the device could not be polled this cycle
	// (spec.md §7 "Device-absent / device-faulted").
	GetStatus() (active bool, forceDisabled bool, criticalAlarm bool, readable bool)
}

// InductionMatrix is the uniform view of an energy storage multiblock.
type InductionMatrix interface {
	Formed() bool
	GetEnergy() float64
	GetMaxEnergy() float64
	GetLastInput() float64
	GetLastOutput() float64
}

// RedstoneIO is bit-level get/set access per configured channel.
type RedstoneIO interface {
	GetInput(channel int) bool
	SetOutput(channel int, value bool)
}
