// Package main — cmd/reactor-plc/main.go
//
// reactor-plc entrypoint: the per-reactor PLC control loop (spec.md
// §4.2), running the RPS, applying supervisor setpoints, and
// publishing PLC_STATUS / PLC_RPS_STATUS packets.
//
// Startup sequence:
//  1. Load and validate config.
//  2. Initialise structured logger.
//  3. Mount the reactor device. No production device backend is
//     implemented here (spec.md §1 "external collaborators": device
//     peripheral mounting); this binds the in-memory simulated.Reactor
//     at its initial telemetry values. Nothing outside this process
//     drives it (cmd/reactor-sim runs its own in-process reactor).
//  4. Start the Prometheus metrics server.
//  5. Start the wire listener, accepting the supervisor's connection.
//  6. Run the control loop on a fixed tick.
//
// Shutdown (SIGINT/SIGTERM): cancel the root context, close all
// sessions, flush the logger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device/simulated"
	"github.com/reactorctl/reactorctl/internal/observability"
	"github.com/reactorctl/reactorctl/internal/plc"
	"github.com/reactorctl/reactorctl/internal/rps"
	"github.com/reactorctl/reactorctl/internal/session"
	"github.com/reactorctl/reactorctl/internal/wire"
)

func main() {
	configPath := flag.String("config", "/etc/reactorctl/config.yaml", "Path to config.yaml")
	unitID := flag.Int("unit-id", 0, "Unit ID this process controls (must appear in config units[])")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("reactor-plc %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	unitCfg, ok := findUnit(cfg.Units, *unitID)
	if !ok {
		log.Fatal("unknown unit-id — not present in config units[]", zap.Int("unit_id", *unitID))
	}

	log.Info("reactor-plc starting",
		zap.String("version", config.Version),
		zap.Int("unit_id", unitCfg.ID),
		zap.String("listen_addr", unitCfg.ListenAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := simulated.NewReactor()
	protection := rps.New(device, cfg.RPS, log)
	loop := plc.New(device, protection, cfg.PLC, unitCfg.LimBR10, log)

	metrics := observability.NewMetrics(log)
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	registry := session.NewRegistry[wire.Packet](cfg.Session.QueueCapacity, cfg.PLC.WatchdogTimeout, metrics, log)
	go func() {
		if err := wire.ServeListener(ctx, unitCfg.ListenAddr, registry, log); err != nil {
			log.Error("wire listener error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.PLC.TickPeriod)
	defer ticker.Stop()

	seq := uint64(0)
runLoop:
	for {
		select {
		case sig := <-sigCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			break runLoop
		case <-ticker.C:
			registry.DispatchInbound(func(addr string, p wire.Packet) {
				handlePLCCmd(loop, p)
			})
			registry.CheckAllWatchdogs()
			registry.FreeAllClosed()
			loop.FeedComms() // TODO(wire): feed only on actual PLC_CMD/MGMT traffic, not every tick

			res := loop.Tick()
			metrics.RPSTripped.WithLabelValues(fmt.Sprintf("unit-%d", unitCfg.ID)).Set(boolToFloat(res.Tripped))

			if res.PublishStatus {
				seq++
				active, forceDisabled, criticalAlarm, readable := device.GetStatus()
				registry.PushToAll(wire.New(fmt.Sprintf("plc-%d", unitCfg.ID), seq, wire.ClassPLCStatus, map[string]any{
					"unit_id":             unitCfg.ID,
					"br10":                res.CurrentBR10,
					"ramp_complete":       res.RampComplete,
					"status":              active,
					"force_disabled":      forceDisabled,
					"critical_alarm":      criticalAlarm,
					"readable":            readable,
					"fuel_fill":           device.GetFuel(),
					"coolant_fill":        device.GetCoolant(),
					"waste_fill":          device.GetWaste(),
					"heated_coolant_fill": device.GetHeatedCoolant(),
					"temperature_k":       device.GetTemperature(),
					"damage_percent":      device.GetDamagePercent(),
					"boil_rate":           device.GetBoilRate(),
					"burn_rate":           device.GetBurnRate(),
					"environmental_loss":  device.GetEnvironmentalLoss(),
				}))
				st := loop.RPSStatus()
				flags := make(map[string]bool, len(st.Flags))
				for name, v := range st.Flags {
					flags[string(name)] = v
				}
				registry.PushToAll(wire.New(fmt.Sprintf("plc-%d", unitCfg.ID), seq, wire.ClassPLCRPSStatus, map[string]any{
					"unit_id":    unitCfg.ID,
					"tripped":    st.Tripped,
					"first_trip": string(st.FirstTrip),
					"flags":      flags,
				}))
			}
		}
	}

	cancel()
	registry.CloseAll()
	log.Info("reactor-plc shutdown complete")
}

func handlePLCCmd(loop *plc.Controller, p wire.Packet) {
	if p.Class != wire.ClassPLCCmd {
		return
	}
	cmd, _ := p.Payload["cmd"].(string)
	switch cmd {
	case "setpoint":
		enable, _ := p.Payload["enable"].(bool)
		burnRate, _ := p.Payload["burn_rate"].(float64)
		ramp, _ := p.Payload["ramp"].(bool)
		loop.ApplySetpoint(enable, burnRate, ramp)
	case "scram":
		loop.RequestAutomaticSCRAM()
	case "reset":
		loop.RequestReset()
	}
}

func findUnit(units []config.UnitConfig, id int) (config.UnitConfig, bool) {
	for _, u := range units {
		if u.ID == id {
			return u, true
		}
	}
	return config.UnitConfig{}, false
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zcfg.Build()
}
