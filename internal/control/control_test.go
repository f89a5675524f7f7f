package control

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/types"
)

type fakeUnit struct {
	id         int
	bladeCount int
	limBR10    int64
	br10       int64
	critical   bool
	engaged    bool

	commits []int64
	ramps   []bool
	scrams  int
	resets  int
}

func (f *fakeUnit) ID() int            { return f.id }
func (f *fakeUnit) BladeCount() int    { return f.bladeCount }
func (f *fakeUnit) AEngage()           { f.engaged = true; f.br10 = 0 }
func (f *fakeUnit) ADisengage()        { f.engaged = false; f.br10 = 0 }
func (f *fakeUnit) AScram()            { f.br10 = 0; f.scrams++ }
func (f *fakeUnit) SetBR10(v int64) {
	if v < 0 {
		v = 0
	}
	if v > f.limBR10 {
		v = f.limBR10
	}
	f.br10 = v
}
func (f *fakeUnit) ACommitBR10(ramp bool) {
	f.commits = append(f.commits, f.br10)
	f.ramps = append(f.ramps, ramp)
}
func (f *fakeUnit) ARampComplete(epsilon float64) bool   { return true }
func (f *fakeUnit) AGetEffectiveLimit() int64             { return f.limBR10 }
func (f *fakeUnit) ACondRPSReset()                        { f.resets++ }
func (f *fakeUnit) AckAll()                               {}
func (f *fakeUnit) HasCriticalAlarm() bool                { return f.critical }
func (f *fakeUnit) GetControlInf() types.ControlRecord {
	return types.ControlRecord{
		UnitID:     f.id,
		BR10:       f.br10,
		LimBR10:    f.limBR10,
		BladeCount: f.bladeCount,
	}
}
func (f *fakeUnit) SetBurnLimit(tenths int64, facilityMode types.Mode) error {
	if facilityMode != types.ModeInactive {
		return fmt.Errorf("fakeUnit: limit changes only allowed in INACTIVE")
	}
	f.limBR10 = tenths
	if f.br10 > tenths {
		f.br10 = tenths
	}
	return nil
}
func (f *fakeUnit) Update(snap types.ReactorSnapshot, critical bool) {
	f.critical = critical
}

func testControlConfig() config.ControlConfig {
	return config.ControlConfig{
		MovingAverageWindow:     20,
		MatrixFillHysteresisLow: 0.95,
		Kp:                      1.0,
		Ki:                      1e-5,
		Kd:                      0,
		MaxBurnCombined:         1000.0,
	}
}

func TestSimpleModeSaturation(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 50}
	u2 := &fakeUnit{id: 2, limBR10: 100}
	c.AddUnit(u1, 1)
	c.AddUnit(u2, 1)

	c.RequestMode(types.ModeSimple)
	res := c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000})

	if u1.br10 != 50 || u2.br10 != 100 {
		t.Fatalf("expected br10 {50,100}, got {%d,%d}", u1.br10, u2.br10)
	}
	if res.Residual != 0 || !res.Saturated {
		t.Fatalf("expected residual=0 saturated=true, got %+v", res)
	}
}

func TestBurnRateAllocationWithClamp(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 20}
	u2 := &fakeUnit{id: 2, limBR10: 40}
	u3 := &fakeUnit{id: 3, limBR10: 80}
	c.AddUnit(u1, 1)
	c.AddUnit(u2, 1)
	c.AddUnit(u3, 1)

	c.RequestMode(types.ModeBurnRate)
	c.SetBurnRateTarget(10.0) // 100 tenths
	res := c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000})

	if u1.br10 != 20 || u2.br10 != 40 || u3.br10 != 40 {
		t.Fatalf("expected {20,40,40}, got {%d,%d,%d}", u1.br10, u2.br10, u3.br10)
	}
	if res.Residual != 0 {
		t.Fatalf("expected residual 0, got %d", res.Residual)
	}
}

func TestMatrixFillHysteresis(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100}
	c.AddUnit(u1, 1)
	c.RequestMode(types.ModeBurnRate)
	c.SetBurnRateTarget(5.0)
	base := time.Now()
	c.Tick(base, types.MatrixSnapshot{Formed: true, MaxEnergy: 1000, Energy: 500})

	// Fill crosses 1.00 -> auto-SCRAM, MATRIX_FAULT_IDLE.
	res := c.Tick(base.Add(1*time.Second), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000, Energy: 1000})
	if !res.ASCRAM || res.ASCRAMReason != types.ASCRAMMatrixFill || res.Mode != types.ModeMatrixFaultIdle {
		t.Fatalf("expected matrix-fill ascram, got %+v", res)
	}

	// Fill drops to 0.97: latch must persist.
	res = c.Tick(base.Add(2*time.Second), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000, Energy: 970})
	if !res.ASCRAM || res.Mode != types.ModeMatrixFaultIdle {
		t.Fatalf("expected latch to persist at fill=0.97, got %+v", res)
	}

	// Fill drops to 0.94: latch clears, mode returns to BURN_RATE.
	res = c.Tick(base.Add(3*time.Second), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000, Energy: 940})
	if res.ASCRAM || res.Mode != types.ModeBurnRate {
		t.Fatalf("expected latch cleared and mode returned to BURN_RATE, got %+v", res)
	}
}

func TestCriticalAlarmTransitionsToUnitAlarmIdle(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100, bladeCount: 4}
	u2 := &fakeUnit{id: 2, limBR10: 100, bladeCount: 4}
	c.AddUnit(u1, 1)
	c.AddUnit(u2, 1)

	c.RequestMode(types.ModeCharge)
	c.SetChargeTarget(1000)
	c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 10000, Energy: 1000})

	u2.critical = true
	res := c.Tick(time.Now().Add(50*time.Millisecond), types.MatrixSnapshot{Formed: true, MaxEnergy: 10000, Energy: 1000})

	if !res.ASCRAM || res.ASCRAMReason != types.ASCRAMCritAlarm || res.Mode != types.ModeUnitAlarmIdle {
		t.Fatalf("expected critical-alarm ascram into UNIT_ALARM_IDLE, got %+v", res)
	}
	if u1.scrams == 0 || u2.scrams == 0 {
		t.Fatal("expected AScram called on every assigned unit")
	}

	// No automatic exit even once the alarm condition clears.
	u2.critical = false
	res = c.Tick(time.Now().Add(100*time.Millisecond), types.MatrixSnapshot{Formed: true, MaxEnergy: 10000, Energy: 1000})
	if res.Mode != types.ModeUnitAlarmIdle {
		t.Fatal("expected UNIT_ALARM_IDLE to require operator reset, not clear automatically")
	}

	c.OperatorResetAlarm()
	if c.Mode() != types.ModeInactive {
		t.Fatalf("expected operator reset to return to INACTIVE, got %s", c.Mode())
	}
}

func TestInactiveModeDisengagesAndScrams(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100}
	c.AddUnit(u1, 1)
	c.RequestMode(types.ModeSimple)
	c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000})

	c.RequestMode(types.ModeInactive)
	c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000})

	if u1.engaged {
		t.Fatal("expected unit disengaged in INACTIVE")
	}
	if u1.br10 != 0 {
		t.Fatalf("expected br10=0 in INACTIVE, got %d", u1.br10)
	}
}

func TestSetUnitLimitRejectedOutsideInactive(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100}
	c.AddUnit(u1, 1)
	c.RequestMode(types.ModeSimple)
	c.Tick(time.Now(), types.MatrixSnapshot{Formed: true, MaxEnergy: 1000})

	if err := c.SetUnitLimit(1, 50); err == nil {
		t.Fatal("expected limit change to be rejected outside INACTIVE")
	}
}

func TestSetUnitLimitAndUnitsSnapshot(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100}
	u2 := &fakeUnit{id: 2, limBR10: 50}
	c.AddUnit(u1, 1)
	c.AddUnit(u2, 1)

	if err := c.SetUnitLimit(1, 70); err != nil {
		t.Fatalf("expected limit change accepted in INACTIVE, got %v", err)
	}

	units := c.Units()
	if len(units) != 2 || units[0].UnitID != 1 || units[0].LimBR10 != 70 || units[1].UnitID != 2 {
		t.Fatalf("unexpected units snapshot: %+v", units)
	}
}

func TestUpdateUnitForwardsSnapshotAndIgnoresUnknown(t *testing.T) {
	c := New(testControlConfig(), 0.05, zap.NewNop())
	u1 := &fakeUnit{id: 1, limBR10: 100}
	c.AddUnit(u1, 1)

	c.UpdateUnit(1, types.ReactorSnapshot{Status: true}, true)
	if !u1.critical {
		t.Fatal("expected critical alarm forwarded to unit")
	}

	c.UpdateUnit(99, types.ReactorSnapshot{}, true) // unknown unit id: no-op, no panic
}
