// Package simulated implements the device.Reactor, device.InductionMatrix
// and device.RedstoneIO interfaces in memory, for use by tests and by
// cmd/reactor-sim. This is not a production device backend — concrete
// peripheral mounting is an external collaborator per spec.md §1.
package simulated

import "sync"

// Reactor is an in-memory fission reactor whose telemetry fields can
// be set directly by a test or driver script.
type Reactor struct {
	mu sync.Mutex

	active        bool
	forceDisabled bool
	criticalAlarm bool
	readable      bool

	temperatureK      float64
	fuelFill          float64
	coolantFill       float64
	wasteFill         float64
	heatedCoolant     float64
	damagePercent     float64
	burnRate          float64
	boilRate          float64
	environmentalLoss float64
}

// NewReactor creates a Reactor in a nominal, readable, inactive state.
func NewReactor() *Reactor {
	return &Reactor{
		readable:    true,
		fuelFill:    1.0,
		coolantFill: 1.0,
	}
}

func (r *Reactor) SCRAM() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burnRate = 0
	r.active = false
}

func (r *Reactor) SetBurnRate(x float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.burnRate = x
}

func (r *Reactor) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
}

func (r *Reactor) GetTemperature() float64      { r.mu.Lock(); defer r.mu.Unlock(); return r.temperatureK }
func (r *Reactor) GetFuel() float64             { r.mu.Lock(); defer r.mu.Unlock(); return r.fuelFill }
func (r *Reactor) GetCoolant() float64          { r.mu.Lock(); defer r.mu.Unlock(); return r.coolantFill }
func (r *Reactor) GetWaste() float64            { r.mu.Lock(); defer r.mu.Unlock(); return r.wasteFill }
func (r *Reactor) GetHeatedCoolant() float64    { r.mu.Lock(); defer r.mu.Unlock(); return r.heatedCoolant }
func (r *Reactor) GetDamagePercent() float64    { r.mu.Lock(); defer r.mu.Unlock(); return r.damagePercent }
func (r *Reactor) GetBurnRate() float64         { r.mu.Lock(); defer r.mu.Unlock(); return r.burnRate }
func (r *Reactor) GetBoilRate() float64         { r.mu.Lock(); defer r.mu.Unlock(); return r.boilRate }
func (r *Reactor) GetEnvironmentalLoss() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.environmentalLoss
}

func (r *Reactor) GetStatus() (active, forceDisabled, criticalAlarm, readable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.forceDisabled, r.criticalAlarm, r.readable
}

// SetTelemetry lets a test or driver script set the full snapshot at once.
func (r *Reactor) SetTelemetry(temperatureK, fuelFill, coolantFill, wasteFill, heatedCoolant, damagePercent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.temperatureK = temperatureK
	r.fuelFill = fuelFill
	r.coolantFill = coolantFill
	r.wasteFill = wasteFill
	r.heatedCoolant = heatedCoolant
	r.damagePercent = damagePercent
}

// SetReadable forces the device into or out of an unreadable fault state.
func (r *Reactor) SetReadable(readable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readable = readable
}

// SetForceDisabled simulates the device reporting itself disabled.
func (r *Reactor) SetForceDisabled(disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceDisabled = disabled
}

// SetCriticalAlarm simulates a device-local critical alarm condition.
func (r *Reactor) SetCriticalAlarm(alarm bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.criticalAlarm = alarm
}

// Matrix is an in-memory induction matrix.
type Matrix struct {
	mu sync.Mutex

	formed     bool
	energy     float64
	maxEnergy  float64
	inputRate  float64
	outputRate float64
}

// NewMatrix creates a formed Matrix with the given max energy.
func NewMatrix(maxEnergy float64) *Matrix {
	return &Matrix{formed: true, maxEnergy: maxEnergy}
}

func (m *Matrix) Formed() bool          { m.mu.Lock(); defer m.mu.Unlock(); return m.formed }
func (m *Matrix) GetEnergy() float64    { m.mu.Lock(); defer m.mu.Unlock(); return m.energy }
func (m *Matrix) GetMaxEnergy() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.maxEnergy }
func (m *Matrix) GetLastInput() float64 { m.mu.Lock(); defer m.mu.Unlock(); return m.inputRate }
func (m *Matrix) GetLastOutput() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputRate
}

// SetFormed toggles the matrix's multiblock-formed state.
func (m *Matrix) SetFormed(formed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formed = formed
}

// SetEnergy sets the current stored energy directly.
func (m *Matrix) SetEnergy(energy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy = energy
}

// SetRates sets the last observed input/output rates.
func (m *Matrix) SetRates(input, output float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputRate = input
	m.outputRate = output
}

// RedstoneIO is an in-memory bit-level I/O bus.
type RedstoneIO struct {
	mu      sync.Mutex
	inputs  map[int]bool
	outputs map[int]bool
}

// NewRedstoneIO creates an empty RedstoneIO bus.
func NewRedstoneIO() *RedstoneIO {
	return &RedstoneIO{inputs: make(map[int]bool), outputs: make(map[int]bool)}
}

func (io *RedstoneIO) GetInput(channel int) bool {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.inputs[channel]
}

func (io *RedstoneIO) SetOutput(channel int, value bool) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.outputs[channel] = value
}

// SetInput lets a test drive an input channel directly.
func (io *RedstoneIO) SetInput(channel int, value bool) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.inputs[channel] = value
}

// Output returns the last value written to an output channel.
func (io *RedstoneIO) Output(channel int) bool {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.outputs[channel]
}
