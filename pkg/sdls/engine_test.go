package sdls

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err := e.Init([]KeySeed{{KID: 200, Value: testKey(), State: KeyStateActive}}); err != nil {
		t.Fatal(err)
	}
	if err := e.sadb.Create(1, SAConfig{EKID: 200, EST: true, AST: true, ShivfLen: IVSize, StmacfLen: MACSize, IvLen: IVSize}, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.sadb.Rekey(1, 200, make([]byte, IVSize), 0); err != nil {
		t.Fatal(err)
	}
	if err := e.sadb.Start(1, []GVCID{{SCID: 0x42, VCID: 1}}, 0); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngineTCApplyThenTCProcessRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	primary := TCPrimaryHeader{SCID: 0x42, VCID: 1, FSN: 1}
	pdu := []byte("ground command payload")

	secured, err := e.TCApply(primary, pdu)
	if err != nil {
		t.Fatalf("TCApply: %v", err)
	}

	reply, err := e.TCProcess(secured)
	if err != nil {
		t.Fatalf("TCProcess: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected no EP reply for a plain payload frame, got %x", reply)
	}
}

func TestEngineTCProcessRejectsReplayedFrame(t *testing.T) {
	e := newTestEngine(t)
	primary := TCPrimaryHeader{SCID: 0x42, VCID: 1, FSN: 1}

	secured, err := e.TCApply(primary, []byte("first"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.TCProcess(secured); err != nil {
		t.Fatalf("first TCProcess should succeed: %v", err)
	}

	// Re-apply against the already-advanced SA would use a fresh IV, so to
	// exercise replay rejection we resubmit the exact same secured frame.
	if _, err := e.TCProcess(secured); !errors.Is(err, ErrReplay) {
		t.Fatalf("resubmitting the same frame should fail with ErrReplay, got %v", err)
	}
}

func TestEngineTCProcessRejectsBadMAC(t *testing.T) {
	e := newTestEngine(t)
	primary := TCPrimaryHeader{SCID: 0x42, VCID: 1, FSN: 1}

	secured, err := e.TCApply(primary, []byte("tamper me"))
	if err != nil {
		t.Fatal(err)
	}
	secured[len(secured)-FECFSize-1] ^= 0xFF // flip a MAC octet, recompute FECF below
	crc := NewCRCEngine()
	fecf := crc.ComputeFECF(secured[:len(secured)-FECFSize])
	secured[len(secured)-2] = byte(fecf >> 8)
	secured[len(secured)-1] = byte(fecf)

	if _, err := e.TCProcess(secured); !errors.Is(err, ErrMac) {
		t.Fatalf("expected ErrMac, got %v", err)
	}
}

func TestEngineTCProcessRejectsUnknownSPI(t *testing.T) {
	e := newTestEngine(t)
	primary := TCPrimaryHeader{SCID: 0x99, VCID: 5, FSN: 1}
	raw := primary.Pack()
	if _, err := e.TCProcess(raw[:]); !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected ErrPolicy for an unbound scid/vcid, got %v", err)
	}
}
