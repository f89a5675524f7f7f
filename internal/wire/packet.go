// Package wire implements the node-to-node wire protocol (spec.md §6):
// length-delimited packets over a broadcast-addressed medium, carrying
// a generic payload table across six packet classes, plus the
// point-to-point Coordinator⇄Supervisor command/status service.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Class identifies a packet's class, fixing how its Payload table is
// interpreted by the receiver.
type Class uint8

const (
	ClassMGMT Class = iota + 1
	ClassPLCStatus
	ClassPLCRPSStatus
	ClassPLCCmd
	ClassRTUData
	ClassCoordCmd
)

func (c Class) String() string {
	switch c {
	case ClassMGMT:
		return "MGMT"
	case ClassPLCStatus:
		return "PLC_STATUS"
	case ClassPLCRPSStatus:
		return "PLC_RPS_STATUS"
	case ClassPLCCmd:
		return "PLC_CMD"
	case ClassRTUData:
		return "RTU_DATA"
	case ClassCoordCmd:
		return "COORD_CMD"
	default:
		return "UNKNOWN"
	}
}

func init() {
	// Payload tables carry their values boxed in interface{}; gob
	// requires every concrete type placed in an interface to be
	// registered, even the predeclared basic ones.
	gob.Register(bool(false))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register([]string(nil))
	gob.Register(map[string]bool(nil))
}

// ProtocolID is the fixed protocol identifier stamped on every packet,
// letting a receiver reject traffic from an unrelated protocol sharing
// the same broadcast medium.
const ProtocolID uint32 = 0x52435431 // "RCT1"

// Packet is the on-wire envelope (spec.md §6): "protocol id, sender
// id, sequence number, type tag, and a payload table."
type Packet struct {
	ProtocolID uint32
	SenderID   string
	Sequence   uint64
	Class      Class
	Payload    map[string]any
}

// New builds a Packet with ProtocolID pre-filled, ready for Encode.
func New(senderID string, seq uint64, class Class, payload map[string]any) Packet {
	if payload == nil {
		payload = map[string]any{}
	}
	return Packet{
		ProtocolID: ProtocolID,
		SenderID:   senderID,
		Sequence:   seq,
		Class:      class,
		Payload:    payload,
	}
}

// maxFrameLen bounds a single decoded frame, guarding against a
// corrupt or hostile length prefix driving an unbounded allocation.
const maxFrameLen = 1 << 20 // 1 MiB

// Encode writes p to w as a 4-byte big-endian length prefix followed
// by a gob-encoded body — the "payload table" of spec.md §6 expressed
// independently of any fixed schema.
func Encode(w io.Writer, p Packet) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(p); err != nil {
		return fmt.Errorf("wire: encode packet: %w", err)
	}
	if body.Len() > maxFrameLen {
		return fmt.Errorf("wire: encoded packet %d bytes exceeds frame limit %d", body.Len(), maxFrameLen)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(body.Len()))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("wire: write packet body: %w", err)
	}
	return nil
}

// Decode reads one length-delimited Packet from r.
func Decode(r *bufio.Reader) (Packet, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Packet{}, fmt.Errorf("wire: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameLen {
		return Packet{}, fmt.Errorf("wire: frame length %d exceeds limit %d", n, maxFrameLen)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("wire: read packet body: %w", err)
	}

	var p Packet
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
		return Packet{}, fmt.Errorf("wire: decode packet: %w", err)
	}
	if p.ProtocolID != ProtocolID {
		return Packet{}, fmt.Errorf("wire: unexpected protocol id 0x%x", p.ProtocolID)
	}
	return p, nil
}
