// Package config provides configuration loading and validation for
// the reactorctl nodes that read a config file (reactor-plc,
// supervisor; the coordinator CLI takes flags only).
//
// Configuration file: /etc/reactorctl/config.yaml (default).
// Schema version: 1.
//
// Loading:
//   - A node reads and validates config.yaml once, at startup.
//   - There is no hot reload: the nodes handle only SIGINT/SIGTERM,
//     and a changed config file takes effect on the next restart.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (fills in [0,1], weights >= 0, etc).
//   - Invalid config on startup: node refuses to start (fatal error).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for a reactorctl node.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1".
	SchemaVersion string `yaml:"schema_version"`

	// NodeID is a unique identifier for this node. Used in wire
	// protocol sender_id fields and log lines. Default: hostname.
	NodeID string `yaml:"node_id"`

	// Networking holds the node's transport settings. Its Enabled field
	// is the explicit "networked" setting of spec.md §9; see
	// NetworkingConfig.Enabled for how (little) the nodes use it.
	Networking NetworkingConfig `yaml:"networking"`

	RPS           RPSConfig           `yaml:"rps"`
	PLC           PLCConfig           `yaml:"plc"`
	Control       ControlConfig       `yaml:"control"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Units is the static per-unit roster (spec.md §3 "Reactor control
	// record (per unit)"): lim_br10, blade_count, and priority group.
	// Populated on the supervisor and, per-unit, on each reactor-plc.
	Units []UnitConfig `yaml:"units"`
}

// UnitConfig is one reactor unit's static configuration.
type UnitConfig struct {
	// ID identifies the unit across wire packets and the coordinator API.
	ID int `yaml:"id"`
	// LimBR10 is the operator-configured maximum burn rate, tenths of mB/t.
	LimBR10 int64 `yaml:"lim_br10"`
	// BladeCount is the turbine blade count, defining power-per-burn.
	BladeCount int `yaml:"blade_count"`
	// Group is the facility priority group, 0..4 (0 = independent).
	Group int `yaml:"group"`
	// ListenAddr is the reactor-plc's packet listen address the
	// supervisor dials to exchange PLC_STATUS/PLC_CMD traffic.
	ListenAddr string `yaml:"listen_addr"`
}

// NetworkingConfig holds transport parameters shared by all node roles.
type NetworkingConfig struct {
	// Enabled is parsed and defaulted (true) but no node binary reads
	// it: reactor-plc and supervisor open their listen and dial
	// channels whatever its value, and Enabled=false does not stop a
	// node from starting.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is this node's packet listen address.
	ListenAddr string `yaml:"listen_addr"`

	// CoordAddr is the TCP address the supervisor's Coordinator service
	// binds to (the coordinator CLI takes its address from its -addr
	// flag). Empty disables it.
	CoordAddr string `yaml:"coord_addr"`

	// OperatorSocketPath is the supervisor's local Unix domain socket
	// for operator overrides, bypassing the Coordinator channel.
	// Empty disables it.
	OperatorSocketPath string `yaml:"operator_socket_path"`
}

// RPSConfig holds reactor protection system thresholds (spec.md §4.1).
type RPSConfig struct {
	// HighTempCeilingK is the temperature ceiling for high_temp. Default 1200.
	HighTempCeilingK float64 `yaml:"high_temp_ceiling_k"`
	// LowCoolantFill is the low-water mark for no_coolant. Default 0.10.
	LowCoolantFill float64 `yaml:"low_coolant_fill"`
	// HighWasteFill is the high-water mark for full_waste. Default 0.80.
	HighWasteFill float64 `yaml:"high_waste_fill"`
	// HighHeatedCoolantFill is the high-water mark for heated_coolant_backup. Default 0.80.
	HighHeatedCoolantFill float64 `yaml:"high_heated_coolant_fill"`
}

// PLCConfig holds per-reactor PLC control loop parameters (spec.md §4.2).
type PLCConfig struct {
	// RampFractionPerTick bounds the per-tick setpoint change during a
	// ramp, as a fraction of lim_br10. Default 0.10 (10%).
	RampFractionPerTick float64 `yaml:"ramp_fraction_per_tick"`

	// RampEpsilon is the |current-target| threshold below which a
	// ramp is considered complete. Default 0.05 (tenths of mB/t).
	RampEpsilon float64 `yaml:"ramp_epsilon"`

	// StatusPeriodTicks is the status broadcast cadence. Default 4.
	StatusPeriodTicks int `yaml:"status_period_ticks"`

	// TickPeriod is the nominal tick duration. Default 50ms.
	TickPeriod time.Duration `yaml:"tick_period"`

	// WatchdogTimeout is the comms inbound-silence timeout. Default 3s.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
}

// ControlConfig holds facility process controller parameters (spec.md §4.4).
type ControlConfig struct {
	// MovingAverageWindow is the sample window for charge/inflow/outflow
	// moving averages. Default 20.
	MovingAverageWindow int `yaml:"moving_average_window"`

	// MatrixFillHysteresisLow is the fill fraction below which the
	// MATRIX_FILL auto-SCRAM clears. Default 0.95.
	MatrixFillHysteresisLow float64 `yaml:"matrix_fill_hysteresis_low"`

	// Kp, Ki, Kd are the PID gains for CHARGE and GEN_RATE modes.
	// Per spec.md §4.4.3 these are tunable constants, not
	// user-visible configuration in production, but are exposed here
	// so tests and the simulator can exercise alternate tunings. Kd is
	// accepted and stored but never applied: the controller is PI only.
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`

	// MaxBurnCombined is the facility-wide burn-rate ceiling (mB/t)
	// used to clamp PID output and flag saturation.
	MaxBurnCombined float64 `yaml:"max_burn_combined"`
}

// SessionConfig holds session registry / watchdog parameters (spec.md §4.3).
type SessionConfig struct {
	// WatchdogTimeout is the supervisor-side per-session liveness
	// timeout. Default ~5s.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`

	// KeepAliveInterval must be <= WatchdogTimeout/2 (spec.md §6).
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`

	// QueueCapacity bounds each session's inbound/outbound queues.
	QueueCapacity int `yaml:"queue_capacity"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	LogFormat string `yaml:"log_format"`

	// LogPath is parsed but not used: the nodes' loggers write only to
	// their default outputs, and no file sink is opened for this path.
	LogPath string `yaml:"log_path"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Networking: NetworkingConfig{
			Enabled:            true,
			ListenAddr:         "0.0.0.0:26700",
			OperatorSocketPath: "/run/reactorctl/operator.sock",
		},
		RPS: RPSConfig{
			HighTempCeilingK:      1200,
			LowCoolantFill:        0.10,
			HighWasteFill:         0.80,
			HighHeatedCoolantFill: 0.80,
		},
		PLC: PLCConfig{
			RampFractionPerTick: 0.10,
			RampEpsilon:         0.05,
			StatusPeriodTicks:   4,
			TickPeriod:          50 * time.Millisecond,
			WatchdogTimeout:     3 * time.Second,
		},
		Control: ControlConfig{
			MovingAverageWindow:     20,
			MatrixFillHysteresisLow: 0.95,
			Kp:                      1.0,
			Ki:                      1e-5,
			Kd:                      0.0,
			MaxBurnCombined:         1000.0,
		},
		Session: SessionConfig{
			WatchdogTimeout:   5 * time.Second,
			KeepAliveInterval: 2 * time.Second,
			QueueCapacity:     256,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, accumulating
// every violation into a single descriptive error.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.RPS.LowCoolantFill < 0 || cfg.RPS.LowCoolantFill > 1 {
		errs = append(errs, fmt.Sprintf("rps.low_coolant_fill must be in [0,1], got %f", cfg.RPS.LowCoolantFill))
	}
	if cfg.RPS.HighWasteFill < 0 || cfg.RPS.HighWasteFill > 1 {
		errs = append(errs, fmt.Sprintf("rps.high_waste_fill must be in [0,1], got %f", cfg.RPS.HighWasteFill))
	}
	if cfg.RPS.HighHeatedCoolantFill < 0 || cfg.RPS.HighHeatedCoolantFill > 1 {
		errs = append(errs, fmt.Sprintf("rps.high_heated_coolant_fill must be in [0,1], got %f", cfg.RPS.HighHeatedCoolantFill))
	}
	if cfg.PLC.RampFractionPerTick <= 0 || cfg.PLC.RampFractionPerTick > 1 {
		errs = append(errs, fmt.Sprintf("plc.ramp_fraction_per_tick must be in (0,1], got %f", cfg.PLC.RampFractionPerTick))
	}
	if cfg.PLC.StatusPeriodTicks < 1 {
		errs = append(errs, fmt.Sprintf("plc.status_period_ticks must be >= 1, got %d", cfg.PLC.StatusPeriodTicks))
	}
	if cfg.PLC.TickPeriod <= 0 {
		errs = append(errs, "plc.tick_period must be > 0")
	}
	if cfg.PLC.WatchdogTimeout <= 0 {
		errs = append(errs, "plc.watchdog_timeout must be > 0")
	}
	if cfg.Control.MovingAverageWindow < 1 {
		errs = append(errs, fmt.Sprintf("control.moving_average_window must be >= 1, got %d", cfg.Control.MovingAverageWindow))
	}
	if cfg.Control.MatrixFillHysteresisLow <= 0 || cfg.Control.MatrixFillHysteresisLow > 1 {
		errs = append(errs, fmt.Sprintf("control.matrix_fill_hysteresis_low must be in (0,1], got %f", cfg.Control.MatrixFillHysteresisLow))
	}
	if cfg.Control.MaxBurnCombined <= 0 {
		errs = append(errs, "control.max_burn_combined must be > 0")
	}
	if cfg.Session.WatchdogTimeout <= 0 {
		errs = append(errs, "session.watchdog_timeout must be > 0")
	}
	if cfg.Session.KeepAliveInterval*2 > cfg.Session.WatchdogTimeout {
		errs = append(errs, "session.keep_alive_interval must be <= watchdog_timeout/2")
	}
	if cfg.Session.QueueCapacity < 1 {
		errs = append(errs, fmt.Sprintf("session.queue_capacity must be >= 1, got %d", cfg.Session.QueueCapacity))
	}
	for _, u := range cfg.Units {
		if u.LimBR10 < 0 {
			errs = append(errs, fmt.Sprintf("units[%d].lim_br10 must be >= 0, got %d", u.ID, u.LimBR10))
		}
		if u.BladeCount < 0 {
			errs = append(errs, fmt.Sprintf("units[%d].blade_count must be >= 0, got %d", u.ID, u.BladeCount))
		}
		if u.Group < 0 || u.Group > 4 {
			errs = append(errs, fmt.Sprintf("units[%d].group must be in [0,4], got %d", u.ID, u.Group))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
