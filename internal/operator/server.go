// Package operator implements a Unix domain socket server for
// reactorctl operator overrides on the supervisor node: manual mode
// changes, unit limit overrides, and status polling outside the
// Coordinator⇄Supervisor TCP channel, for use from the local host
// (spec.md's "operator front panels" are an external collaborator;
// this is the narrow local socket that front panel would otherwise
// dial directly rather than routing through the network).
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: /run/reactorctl/operator.sock (configurable).
// Permissions: 0600, owned by root.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"status"}
//	  -> Response: {"ok":true,"mode":"BURN_RATE","units":[...]}
//	     ("auto_scram":true is included only while an automatic SCRAM is latched)
//
//	{"cmd":"set_mode","mode":"INACTIVE"}
//	  -> Response: {"ok":true,"mode":"INACTIVE"}
//
//	{"cmd":"set_limit","unit_id":1,"lim_br10":500}
//	  -> Response: {"ok":true,"unit_id":1,"lim_br10":500}
//
//	{"cmd":"reset_alarm"}
//	  -> Response: {"ok":true,"mode":"INACTIVE"}
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/types"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// Facade is the subset of control.Controller the operator socket
// drives. Kept narrow so tests can supply a fake.
type Facade interface {
	RequestMode(m types.Mode)
	Mode() types.Mode
	ASCRAM() (bool, types.AutoSCRAMReason)
	Units() []types.ControlRecord
	SetUnitLimit(unitID int, tenths int64) error
	OperatorResetAlarm()
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd     string `json:"cmd"` // status | set_mode | set_limit | reset_alarm
	Mode    string `json:"mode,omitempty"`
	UnitID  int    `json:"unit_id,omitempty"`
	LimBR10 int64  `json:"lim_br10,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK        bool                  `json:"ok"`
	Error     string                `json:"error,omitempty"`
	Mode      string                `json:"mode,omitempty"`
	AutoSCRAM bool                  `json:"auto_scram,omitempty"`
	UnitID    int                   `json:"unit_id,omitempty"`
	LimBR10   int64                 `json:"lim_br10,omitempty"`
	Units     []types.ControlRecord `json:"units,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	facility   Facade
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server.
func NewServer(socketPath string, facility Facade, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		facility:   facility,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server, removing any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn reads one JSON request, executes the command, writes one
// JSON response.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	s.writeResponse(conn, s.dispatch(req))
}

func (s *Server) dispatch(req Request) Response {
	switch req.Cmd {
	case "status":
		return s.cmdStatus()
	case "set_mode":
		return s.cmdSetMode(req)
	case "set_limit":
		return s.cmdSetLimit(req)
	case "reset_alarm":
		return s.cmdResetAlarm()
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus() Response {
	ascram, _ := s.facility.ASCRAM()
	return Response{
		OK:        true,
		Mode:      s.facility.Mode().String(),
		AutoSCRAM: ascram,
		Units:     s.facility.Units(),
	}
}

func (s *Server) cmdSetMode(req Request) Response {
	m, err := parseMode(req.Mode)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.facility.RequestMode(m)
	s.log.Info("operator: mode change requested", zap.String("mode", m.String()))
	return Response{OK: true, Mode: m.String()}
}

func (s *Server) cmdSetLimit(req Request) Response {
	if err := s.facility.SetUnitLimit(req.UnitID, req.LimBR10); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.log.Info("operator: unit limit set", zap.Int("unit_id", req.UnitID), zap.Int64("lim_br10", req.LimBR10))
	return Response{OK: true, UnitID: req.UnitID, LimBR10: req.LimBR10}
}

func (s *Server) cmdResetAlarm() Response {
	s.facility.OperatorResetAlarm()
	s.log.Info("operator: alarm reset")
	return Response{OK: true, Mode: s.facility.Mode().String()}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

// parseMode converts a mode name string to a types.Mode.
func parseMode(name string) (types.Mode, error) {
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
