package rps

import (
	"testing"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device/simulated"
	"github.com/reactorctl/reactorctl/internal/types"
)

func testConfig() config.RPSConfig {
	return config.RPSConfig{
		HighTempCeilingK:      1200,
		LowCoolantFill:        0.10,
		HighWasteFill:         0.80,
		HighHeatedCoolantFill: 0.80,
	}
}

func TestScanNominalDoesNotTrip(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	p := New(r, testConfig(), zap.NewNop())

	tripped, name := p.Scan(Snapshot{})
	if tripped {
		t.Fatalf("expected no trip, got %q", name)
	}
}

func TestScanHighTempTrips(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(1300, 1.0, 1.0, 0, 0, 0)
	p := New(r, testConfig(), zap.NewNop())

	tripped, name := p.Scan(Snapshot{})
	if !tripped || name != types.TripHighTemp {
		t.Fatalf("expected high_temp trip, got tripped=%v name=%q", tripped, name)
	}
	if !p.Tripped() {
		t.Fatal("Tripped() should report true after latch")
	}
}

func TestScanIsLatchingAndIdempotent(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(1300, 1.0, 1.0, 0, 0, 0)
	p := New(r, testConfig(), zap.NewNop())

	p.Scan(Snapshot{})
	// Clear the condition but do not reset; the latch must hold.
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	tripped, name := p.Scan(Snapshot{})
	if !tripped || name != types.TripHighTemp {
		t.Fatalf("expected latch to hold on high_temp, got tripped=%v name=%q", tripped, name)
	}
}

func TestResetRequiresAllClear(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(1300, 1.0, 1.0, 0, 0, 0)
	p := New(r, testConfig(), zap.NewNop())
	p.Scan(Snapshot{})

	if p.Reset() {
		t.Fatal("reset should fail while high_temp condition persists")
	}

	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	p.Scan(Snapshot{})
	if !p.Reset() {
		t.Fatal("reset should succeed once all predicates are clear")
	}
	if p.Tripped() {
		t.Fatal("expected untripped state after successful reset")
	}
}

func TestUnreadableDeviceTripsFault(t *testing.T) {
	r := simulated.NewReactor()
	r.SetReadable(false)
	p := New(r, testConfig(), zap.NewNop())

	tripped, name := p.Scan(Snapshot{})
	if !tripped || name != types.TripFault {
		t.Fatalf("expected fault trip on unreadable device, got tripped=%v name=%q", tripped, name)
	}
}

func TestManualTripRecordedInStatus(t *testing.T) {
	r := simulated.NewReactor()
	r.SetTelemetry(500, 1.0, 1.0, 0, 0, 0)
	p := New(r, testConfig(), zap.NewNop())

	tripped, name := p.Scan(Snapshot{Manual: true})
	if !tripped || name != types.TripManual {
		t.Fatalf("expected manual trip, got tripped=%v name=%q", tripped, name)
	}
	st := p.Status()
	if !st.Manual {
		t.Fatal("expected Status().Manual to be true")
	}
}
