package wire

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/types"
)

func init() {
	// The status response's "units" field boxes a []map[string]any in
	// the payload table's interface{} values, same requirement as
	// packet.go's init().
	gob.Register([]map[string]any(nil))
}

// RPSStatusLookup supplies the last known RPS status for a unit, as
// tracked by the supervisor from incoming PLC_RPS_STATUS packets
// (control.Controller has no visibility into the PLC-resident RPS).
type RPSStatusLookup interface {
	RPSStatusFor(unitID int) (tripped bool, firstTrip string, ok bool)
}

// FacilityFacade is the subset of control.Controller the Coordinator
// service drives. Kept narrow so tests can supply a fake without
// pulling in the whole control package.
type FacilityFacade interface {
	RequestMode(m types.Mode)
	SetChargeTarget(v float64)
	SetGenRateTarget(v float64)
	SetBurnRateTarget(v float64)
	SetUnitLimit(unitID int, tenths int64) error
	Mode() types.Mode
	ASCRAM() (bool, types.AutoSCRAMReason)
	Units() []types.ControlRecord
}

// coordConnTimeout bounds how long a single Coordinator request/response
// exchange may take before the connection is abandoned.
const coordConnTimeout = 10 * time.Second

// CoordinatorServer implements the Coordinator command/status service
// (spec.md §6 "COORD_CMD (mode, targets, limits, ack)"), the one
// point-to-point interaction in an otherwise broadcast-framed wire
// protocol. It is a plain request/response exchange over the same
// length-delimited packet codec as the rest of internal/wire, rather
// than a second transport: one COORD_CMD request in, one COORD_CMD
// response out, per connection.
type CoordinatorServer struct {
	facility  FacilityFacade
	rpsLookup RPSStatusLookup
	log       *zap.Logger
}

// NewCoordinatorServer builds a server backed by facility. rpsLookup
// may be nil, in which case RPS status fields are left unset.
func NewCoordinatorServer(facility FacilityFacade, rpsLookup RPSStatusLookup, log *zap.Logger) *CoordinatorServer {
	return &CoordinatorServer{facility: facility, rpsLookup: rpsLookup, log: log}
}

// ListenAndServe starts the Coordinator service on addr and blocks
// until ctx is cancelled.
func (s *CoordinatorServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("wire: listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	s.log.Info("coordinator service listening", zap.String("addr", addr))
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wire: accept on %s: %w", addr, err)
		}
		go s.handleConn(conn)
	}
}

// handleConn decodes one COORD_CMD request packet, dispatches it, and
// writes back one COORD_CMD response packet.
func (s *CoordinatorServer) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(coordConnTimeout))

	req, err := Decode(bufio.NewReader(conn))
	if err != nil {
		s.log.Warn("coordinator: decode request failed", zap.Error(err))
		return
	}
	if req.Class != ClassCoordCmd {
		s.log.Warn("coordinator: unexpected packet class", zap.String("class", req.Class.String()))
		return
	}

	resp := New("supervisor", req.Sequence, ClassCoordCmd, s.dispatch(req))
	if err := Encode(conn, resp); err != nil {
		s.log.Warn("coordinator: encode response failed", zap.Error(err))
	}
}

// dispatch executes one Coordinator command and returns the response
// payload table.
func (s *CoordinatorServer) dispatch(req Packet) map[string]any {
	switch cmd, _ := req.Payload["cmd"].(string); cmd {
	case "set_mode":
		return s.cmdSetMode(req)
	case "set_target":
		return s.cmdSetTarget(req)
	case "set_unit_limit":
		return s.cmdSetUnitLimit(req)
	case "get_status":
		return s.cmdGetStatus()
	default:
		return map[string]any{"accepted": false, "rejection_reason": fmt.Sprintf("unknown command %q", cmd)}
	}
}

func (s *CoordinatorServer) cmdSetMode(req Packet) map[string]any {
	name, _ := req.Payload["mode"].(string)
	m, err := modeFromName(name)
	if err != nil {
		return map[string]any{"accepted": false, "rejection_reason": err.Error()}
	}
	s.facility.RequestMode(m)
	s.log.Info("coordinator set_mode", zap.String("mode", m.String()))
	return map[string]any{"accepted": true, "mode": m.String()}
}

func (s *CoordinatorServer) cmdSetTarget(req Packet) map[string]any {
	target := payloadFloat(req.Payload, "target")
	switch s.facility.Mode() {
	case types.ModeCharge:
		s.facility.SetChargeTarget(target)
	case types.ModeGenRate:
		s.facility.SetGenRateTarget(target)
	case types.ModeBurnRate:
		s.facility.SetBurnRateTarget(target)
	default:
		return map[string]any{"accepted": false, "rejection_reason": "target not applicable to current mode"}
	}
	return map[string]any{"accepted": true}
}

func (s *CoordinatorServer) cmdSetUnitLimit(req Packet) map[string]any {
	unitID := payloadInt(req.Payload, "unit_id")
	limBR10, _ := req.Payload["lim_br10"].(int64)
	if err := s.facility.SetUnitLimit(unitID, limBR10); err != nil {
		s.log.Warn("coordinator set_unit_limit rejected", zap.Error(err))
		return map[string]any{"accepted": false, "rejection_reason": err.Error()}
	}
	return map[string]any{"accepted": true, "unit_id": unitID, "lim_br10": limBR10}
}

func (s *CoordinatorServer) cmdGetStatus() map[string]any {
	ascram, reason := s.facility.ASCRAM()
	resp := map[string]any{
		"accepted":          true,
		"mode":              s.facility.Mode().String(),
		"auto_scram":        ascram,
		"auto_scram_reason": reason.String(),
	}

	units := make([]map[string]any, 0, len(s.facility.Units()))
	for _, rec := range s.facility.Units() {
		u := map[string]any{
			"unit_id":  rec.UnitID,
			"br10":     rec.BR10,
			"lim_br10": rec.LimBR10,
		}
		if s.rpsLookup != nil {
			if tripped, firstTrip, ok := s.rpsLookup.RPSStatusFor(rec.UnitID); ok {
				u["rps_tripped"] = tripped
				u["first_trip"] = firstTrip
			}
		}
		units = append(units, u)
	}
	resp["units"] = units
	return resp
}

// modeFromName converts a mode name string to a types.Mode.
func modeFromName(name string) (types.Mode, error) {
	switch name {
	case "INACTIVE":
		return types.ModeInactive, nil
	case "SIMPLE":
		return types.ModeSimple, nil
	case "BURN_RATE":
		return types.ModeBurnRate, nil
	case "CHARGE":
		return types.ModeCharge, nil
	case "GEN_RATE":
		return types.ModeGenRate, nil
	default:
		return types.ModeInactive, fmt.Errorf("unknown mode %q (valid: INACTIVE SIMPLE BURN_RATE CHARGE GEN_RATE)", name)
	}
}
