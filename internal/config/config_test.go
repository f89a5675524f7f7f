package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsPassValidation(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateAccumulatesMultipleViolations(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	cfg.RPS.LowCoolantFill = 1.5
	cfg.PLC.TickPeriod = 0

	err := Validate(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"schema_version", "low_coolant_fill", "tick_period"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error to mention %q, got: %s", want, msg)
		}
	}
}

func TestValidateRejectsUnitOutOfRangeGroup(t *testing.T) {
	cfg := Defaults()
	cfg.Units = []UnitConfig{{ID: 1, LimBR10: 100, BladeCount: 4, Group: 9}}

	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for out-of-range group")
	}
}

func TestValidateRejectsKeepAliveAboveHalfWatchdog(t *testing.T) {
	cfg := Defaults()
	cfg.Session.KeepAliveInterval = cfg.Session.WatchdogTimeout

	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for keep_alive_interval > watchdog_timeout/2")
	}
}

func TestLoadMergesFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
schema_version: "1"
node_id: unit-test-node
units:
  - id: 1
    lim_br10: 500
    blade_count: 8
    group: 1
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != "unit-test-node" {
		t.Fatalf("expected node_id override, got %q", cfg.NodeID)
	}
	if cfg.RPS.HighTempCeilingK != 1200 {
		t.Fatalf("expected default high_temp_ceiling_k to survive merge, got %v", cfg.RPS.HighTempCeilingK)
	}
	if len(cfg.Units) != 1 || cfg.Units[0].LimBR10 != 500 {
		t.Fatalf("expected one unit with lim_br10=500, got %+v", cfg.Units)
	}
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error loading a missing file")
	}
}

