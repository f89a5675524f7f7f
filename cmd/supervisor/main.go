// Package main — cmd/supervisor/main.go
//
// supervisor entrypoint: the facility process controller (spec.md
// §4.4), dialing every configured reactor-plc's wire listener,
// tracking per-unit control records and RPS status from inbound
// PLC_STATUS / PLC_RPS_STATUS packets, running the mode machine /
// PID / allocation tick, and exposing the single-point Coordinator
// service (wire.CoordinatorServer) for the coordinator CLI.
//
// Startup sequence:
//  1. Load and validate config.
//  2. Initialise structured logger.
//  3. Build the facility controller and, per configured unit, a
//     unit.Unit fronting a wire session dialed to that unit's
//     reactor-plc.
//  4. Mount the induction matrix. No production matrix backend is
//     implemented here (spec.md §1 "external collaborators"); this
//     binds the in-memory simulated.Matrix at its initial values;
//     nothing outside this process drives it.
//  5. Start the Prometheus metrics server.
//  6. Start the Coordinator TCP listener (if networking.coord_addr is set)
//     and the operator socket (if networking.operator_socket_path is set).
//  7. Run the controller tick loop on a fixed period.
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
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/control"
	"github.com/reactorctl/reactorctl/internal/device/simulated"
	"github.com/reactorctl/reactorctl/internal/observability"
	"github.com/reactorctl/reactorctl/internal/operator"
	"github.com/reactorctl/reactorctl/internal/session"
	"github.com/reactorctl/reactorctl/internal/types"
	"github.com/reactorctl/reactorctl/internal/unit"
	"github.com/reactorctl/reactorctl/internal/wire"
)

func main() {
	configPath := flag.String("config", "/etc/reactorctl/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("supervisor %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
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

	log.Info("supervisor starting",
		zap.String("version", config.Version),
		zap.Int("unit_count", len(cfg.Units)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(log)
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	ctrl := control.New(cfg.Control, cfg.PLC.RampEpsilon, log)
	rpsLookup := newRPSTracker()

	registry := session.NewRegistry[wire.Packet](cfg.Session.QueueCapacity, cfg.Session.WatchdogTimeout, metrics, log)

	for _, unitCfg := range cfg.Units {
		sess := registry.GetOrCreate(unitCfg.ListenAddr)
		sink := wire.NewSessionSink(cfg.NodeID, sess)
		u := unit.New(unitCfg.ID, unitCfg.LimBR10, unitCfg.BladeCount, sink, log)
		if err := ctrl.AddUnit(u, unitCfg.Group); err != nil {
			log.Fatal("failed to register unit", zap.Int("unit_id", unitCfg.ID), zap.Error(err))
		}
		go dialWithRetry(ctx, unitCfg.ListenAddr, registry, log)
	}

	matrix := simulated.NewMatrix(1_000_000)

	coordSrv := wire.NewCoordinatorServer(ctrl, rpsLookup, log)
	if cfg.Networking.CoordAddr != "" {
		go func() {
			if err := coordSrv.ListenAndServe(ctx, cfg.Networking.CoordAddr); err != nil {
				log.Error("coordinator RPC server error", zap.Error(err))
			}
		}()
	}

	if cfg.Networking.OperatorSocketPath != "" {
		opSrv := operator.NewServer(cfg.Networking.OperatorSocketPath, ctrl, log)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator socket server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.PLC.TickPeriod)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case sig := <-sigCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			break runLoop
		case <-ticker.C:
			registry.DispatchInbound(func(addr string, p wire.Packet) {
				handleInboundStatus(ctrl, rpsLookup, p)
			})
			registry.CheckAllWatchdogs()
			registry.FreeAllClosed()

			matrixSnap := matrixSnapshot(matrix)
			res := ctrl.Tick(time.Now(), matrixSnap)

			metrics.FacilityMode.Set(float64(res.Mode))
			if res.ASCRAM {
				metrics.RecordAutoSCRAM(res.ASCRAMReason)
			}
		}
	}

	cancel()
	registry.CloseAll()
	log.Info("supervisor shutdown complete")
}

// handleInboundStatus routes an inbound PLC_STATUS / PLC_RPS_STATUS
// packet to the owning unit's control record and the RPS tracker, the
// supervisor-side half of the enriched status payload published by
// cmd/reactor-plc.
func handleInboundStatus(ctrl *control.Controller, rpsLookup *rpsTracker, p wire.Packet) {
	unitID := wire.UnitIDFromStatus(p)
	switch p.Class {
	case wire.ClassPLCStatus:
		snap := wire.ReactorSnapshotFromStatus(p)
		ctrl.UpdateUnit(unitID, snap, snap.CriticalAlarm)
	case wire.ClassPLCRPSStatus:
		tripped, _ := p.Payload["tripped"].(bool)
		firstTrip, _ := p.Payload["first_trip"].(string)
		rpsLookup.record(unitID, tripped, firstTrip)
	}
}

// matrixSnapshot reads the current induction-matrix telemetry into a
// types.MatrixSnapshot for the controller's auto-SCRAM evaluation.
func matrixSnapshot(m *simulated.Matrix) types.MatrixSnapshot {
	return types.MatrixSnapshot{
		Formed:     m.Formed(),
		Energy:     m.GetEnergy(),
		MaxEnergy:  m.GetMaxEnergy(),
		InputRate:  m.GetLastInput(),
		OutputRate: m.GetLastOutput(),
	}
}

// dialWithRetry keeps a wire session to remoteAddr alive, redialing
// with backoff on disconnect, until ctx is cancelled.
func dialWithRetry(ctx context.Context, remoteAddr string, registry *session.Registry[wire.Packet], log *zap.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := wire.DialPeer(ctx, remoteAddr, registry, log); err != nil {
			log.Warn("dial to reactor-plc failed, retrying", zap.String("addr", remoteAddr), zap.Error(err), zap.Duration("backoff", backoff))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// rpsTracker records the last known RPS status per unit, populated
// from inbound PLC_RPS_STATUS packets, and implements
// wire.RPSStatusLookup for the CoordinatorServer's get_status command.
type rpsTracker struct {
	mu   sync.Mutex
	byID map[int]rpsEntry
}

type rpsEntry struct {
	tripped   bool
	firstTrip string
}

func newRPSTracker() *rpsTracker {
	return &rpsTracker{byID: make(map[int]rpsEntry)}
}

func (t *rpsTracker) record(unitID int, tripped bool, firstTrip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[unitID] = rpsEntry{tripped: tripped, firstTrip: firstTrip}
}

func (t *rpsTracker) RPSStatusFor(unitID int) (tripped bool, firstTrip string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[unitID]
	return e.tripped, e.firstTrip, ok
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
