package plc

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device/simulated"
	"github.com/reactorctl/reactorctl/internal/rps"
)

func testRPSConfig() config.RPSConfig {
	return config.RPSConfig{
		HighTempCeilingK:      1200,
		LowCoolantFill:        0.10,
		HighWasteFill:         0.80,
		HighHeatedCoolantFill: 0.80,
	}
}

func testPLCConfig() config.PLCConfig {
	return config.PLCConfig{
		RampFractionPerTick: 0.10,
		RampEpsilon:         0.05,
		StatusPeriodTicks:   4,
		TickPeriod:          50 * time.Millisecond,
		WatchdogTimeout:     3 * time.Second,
	}
}

func TestApplySetpointRampsTowardTarget(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	c := New(r, protection, testPLCConfig(), 1000, zap.NewNop())

	c.ApplySetpoint(true, 100.0, true) // target 1000 tenths, limBR10=1000, ramp max 100/tick

	res := c.Tick()
	if res.CurrentBR10 != 100 {
		t.Fatalf("expected first ramp step of 100, got %d", res.CurrentBR10)
	}

	res = c.Tick()
	if res.CurrentBR10 != 200 {
		t.Fatalf("expected second ramp step of 200, got %d", res.CurrentBR10)
	}
}

func TestApplySetpointJumpsWithoutRamp(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	c := New(r, protection, testPLCConfig(), 1000, zap.NewNop())

	c.ApplySetpoint(true, 50.0, false)
	res := c.Tick()
	if res.CurrentBR10 != 500 {
		t.Fatalf("expected immediate jump to 500, got %d", res.CurrentBR10)
	}
}

func TestSetpointClampedToLimit(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	c := New(r, protection, testPLCConfig(), 200, zap.NewNop())

	c.ApplySetpoint(true, 100.0, false) // 1000 tenths requested, limit 200
	res := c.Tick()
	if res.CurrentBR10 != 200 {
		t.Fatalf("expected clamp to limBR10=200, got %d", res.CurrentBR10)
	}
}

func TestRPSTripForcesZeroBurn(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(1300, 1.0, 1.0, 0, 0, 0) // over temperature ceiling
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	c := New(r, protection, testPLCConfig(), 1000, zap.NewNop())

	c.ApplySetpoint(true, 100.0, false)
	res := c.Tick()

	if !res.Tripped {
		t.Fatal("expected RPS trip on high temperature")
	}
	if res.CurrentBR10 != 0 {
		t.Fatalf("expected zero burn rate after trip, got %d", res.CurrentBR10)
	}
}

func TestCommsWatchdogTimeoutTripsRPS(t *testing.T) {
	cfg := testPLCConfig()
	cfg.WatchdogTimeout = 10 * time.Millisecond

	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	c := New(r, protection, cfg, 1000, zap.NewNop())
	c.FeedComms()

	time.Sleep(25 * time.Millisecond)
	res := c.Tick()
	if !res.Tripped {
		t.Fatal("expected comms watchdog expiry to trip RPS")
	}
}

func TestStatusPublishCadence(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	protection := rps.New(r, testRPSConfig(), zap.NewNop())
	cfg := testPLCConfig()
	cfg.StatusPeriodTicks = 4
	c := New(r, protection, cfg, 1000, zap.NewNop())

	var published []bool
	for i := 0; i < 4; i++ {
		res := c.Tick()
		published = append(published, res.PublishStatus)
	}

	if published[0] || published[1] || published[2] || !published[3] {
		t.Fatalf("expected publish only on 4th tick, got %v", published)
	}
}
