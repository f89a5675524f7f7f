package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New("plc-1", 42, ClassPLCStatus, map[string]any{
		"burn_rate": 12.5,
		"enabled":   true,
	})

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.SenderID != "plc-1" || got.Sequence != 42 || got.Class != ClassPLCStatus {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Payload["burn_rate"] != 12.5 || got.Payload["enabled"] != true {
		t.Fatalf("payload mismatch: %+v", got.Payload)
	}
}

func TestDecodeMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(0); i < 3; i++ {
		if err := Encode(&buf, New("rtu-1", i, ClassRTUData, nil)); err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
	}

	r := bufio.NewReader(&buf)
	for i := uint64(0); i < 3; i++ {
		p, err := Decode(r)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if p.Sequence != i {
			t.Fatalf("expected sequence %d, got %d", i, p.Sequence)
		}
	}
}

func TestDecodeRejectsWrongProtocolID(t *testing.T) {
	p := New("x", 0, ClassMGMT, nil)
	p.ProtocolID = 0xdeadbeef

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected decode to reject mismatched protocol id")
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // huge bogus length prefix
	if _, err := Decode(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected decode to reject an oversized frame length")
	}
}

func TestClassString(t *testing.T) {
	if ClassCoordCmd.String() != "COORD_CMD" {
		t.Fatalf("unexpected string for ClassCoordCmd: %s", ClassCoordCmd.String())
	}
	if Class(99).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range class")
	}
}
