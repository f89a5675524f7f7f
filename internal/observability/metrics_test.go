package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/types"
)

func TestRecordTripSetsCounterAndGauge(t *testing.T) {
	m := NewMetrics(zap.NewNop())
	m.RecordTrip("unit-1", types.TripHighTemp)

	if got := testutil.ToFloat64(m.RPSTripped.WithLabelValues("unit-1")); got != 1 {
		t.Fatalf("expected tripped gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.TripsTotal.WithLabelValues(string(types.TripHighTemp), "unit-1")); got != 1 {
		t.Fatalf("expected trips_total 1, got %v", got)
	}
}

func TestRecordResetClearsGauge(t *testing.T) {
	m := NewMetrics(zap.NewNop())
	m.RecordTrip("unit-1", types.TripManual)
	m.RecordReset("unit-1")

	if got := testutil.ToFloat64(m.RPSTripped.WithLabelValues("unit-1")); got != 0 {
		t.Fatalf("expected tripped gauge cleared to 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.ResetsTotal.WithLabelValues("unit-1")); got != 1 {
		t.Fatalf("expected resets_total 1, got %v", got)
	}
}

func TestIncDroppedSatisfiesDropCounter(t *testing.T) {
	m := NewMetrics(zap.NewNop())
	m.IncDropped("inbound")
	m.IncDropped("inbound")

	if got := testutil.ToFloat64(m.QueueDropped.WithLabelValues("inbound")); got != 2 {
		t.Fatalf("expected dropped_total 2, got %v", got)
	}
}

func TestSetQueueDepth(t *testing.T) {
	m := NewMetrics(zap.NewNop())
	m.SetQueueDepth("outbound", 7)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("outbound")); got != 7 {
		t.Fatalf("expected queue depth 7, got %v", got)
	}
}

func TestRecordAutoSCRAM(t *testing.T) {
	m := NewMetrics(zap.NewNop())
	m.RecordAutoSCRAM(types.ASCRAMMatrixFill)

	if got := testutil.ToFloat64(m.AutoSCRAMTotal.WithLabelValues(types.ASCRAMMatrixFill.String())); got != 1 {
		t.Fatalf("expected auto_scram_total 1, got %v", got)
	}
}
