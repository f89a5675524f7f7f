package wire

import "testing"

func TestReactorSnapshotFromStatusRoundTrips(t *testing.T) {
	p := New("plc-1", 1, ClassPLCStatus, map[string]any{
		"unit_id":             3,
		"status":              true,
		"fuel_fill":           0.8,
		"coolant_fill":        0.6,
		"waste_fill":          0.1,
		"heated_coolant_fill": 0.2,
		"temperature_k":       950.5,
		"damage_percent":      0.0,
		"boil_rate":           12.5,
		"burn_rate":           40.0,
		"environmental_loss":  0.01,
		"force_disabled":      false,
		"readable":            true,
		"critical_alarm":      false,
	})

	if got := UnitIDFromStatus(p); got != 3 {
		t.Fatalf("expected unit_id 3, got %d", got)
	}

	snap := ReactorSnapshotFromStatus(p)
	if !snap.Status || !snap.Readable || snap.ForceDisabled || snap.CriticalAlarm {
		t.Fatalf("unexpected flags: %+v", snap)
	}
	if snap.TemperatureK != 950.5 || snap.BurnRate != 40.0 {
		t.Fatalf("unexpected telemetry: %+v", snap)
	}
}

func TestReactorSnapshotFromStatusDefaultsOnMissingFields(t *testing.T) {
	p := New("plc-1", 1, ClassPLCStatus, map[string]any{"unit_id": 1})
	snap := ReactorSnapshotFromStatus(p)
	if snap.Status || snap.TemperatureK != 0 || snap.Readable {
		t.Fatalf("expected zero-value snapshot for missing fields, got %+v", snap)
	}
}

func TestUnitIDFromStatusHandlesIntVariants(t *testing.T) {
	cases := []map[string]any{
		{"unit_id": 5},
		{"unit_id": int64(5)},
		{"unit_id": float64(5)},
	}
	for _, pl := range cases {
		p := New("plc-1", 1, ClassPLCRPSStatus, pl)
		if got := UnitIDFromStatus(p); got != 5 {
			t.Fatalf("expected unit_id 5 for payload %+v, got %d", pl, got)
		}
	}
}
