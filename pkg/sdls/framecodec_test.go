package sdls

import (
	"bytes"
	"testing"
)

func TestTCPrimaryHeaderPackUnpackRoundTrip(t *testing.T) {
	h := TCPrimaryHeader{TFVN: 0, Bypass: true, CC: false, SCID: 0x123, VCID: 0x2A, FL: 0x1FF, FSN: 0x77}
	packed := h.Pack()
	got, err := UnpackTCPrimaryHeader(packed[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestTMPrimaryHeaderPackUnpackRoundTrip(t *testing.T) {
	h := TMPrimaryHeader{TFVN: 0, SCID: 0x123, VCID: 0x5, OCFFlag: true, MCFC: 0x11, VCFC: 0x22, TFSH: true, Sync: false, POPF: true, SegLenID: 0x2, FHP: 0x321}
	packed := h.Pack()
	got, err := UnpackTMPrimaryHeader(packed[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestEncodeDecodeTCRoundTrip(t *testing.T) {
	crc := NewCRCEngine()
	codec := NewFrameCodec(crc)
	sa := &SecurityAssociation{SPI: 7, ShivfLen: IVSize, ShsnfLen: 0, ShplfLen: 0, StmacfLen: MACSize}

	primary := TCPrimaryHeader{SCID: 0x42, VCID: 1, FSN: 0x01}
	iv := make([]byte, IVSize)
	iv[IVSize-1] = 0x09
	mac := bytes.Repeat([]byte{0xAB}, MACSize)
	pdu := []byte("hello, spacecraft")

	raw, err := codec.EncodeTC(sa, primary, iv, nil, nil, pdu, mac)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := codec.DecodeTC(sa, raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame.PDU, pdu) {
		t.Errorf("decoded PDU = %q, want %q", frame.PDU, pdu)
	}
	if !bytes.Equal(frame.MAC, mac) {
		t.Errorf("decoded MAC = %x, want %x", frame.MAC, mac)
	}
	if !bytes.Equal(frame.Security.IV, iv) {
		t.Errorf("decoded IV = %x, want %x", frame.Security.IV, iv)
	}
}

func TestDecodeTCRejectsBadFECF(t *testing.T) {
	crc := NewCRCEngine()
	codec := NewFrameCodec(crc)
	sa := &SecurityAssociation{SPI: 7, ShivfLen: IVSize, StmacfLen: MACSize}
	primary := TCPrimaryHeader{SCID: 1, VCID: 1}
	raw, err := codec.EncodeTC(sa, primary, make([]byte, IVSize), nil, nil, []byte("x"), make([]byte, MACSize))
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF

	if _, err := codec.DecodeTC(sa, raw); err == nil {
		t.Fatal("DecodeTC should reject a corrupted FECF")
	}
}

func TestEncodeDecodeTMRoundTrip(t *testing.T) {
	crc := NewCRCEngine()
	codec := NewFrameCodec(crc)
	sa := &SecurityAssociation{SPI: 9}
	primary := TMPrimaryHeader{SCID: 0x42, VCID: 2}
	var iv [IVSize]byte
	iv[IVSize-1] = 0x05
	pdu := []byte("telemetry payload")
	var mac [MACSize]byte
	mac[0] = 0xCD
	var ocf [OCFSize]byte
	ocf[0] = 0x01

	raw, err := codec.EncodeTM(sa, primary, iv, pdu, mac, ocf)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != TMFrameSize {
		t.Fatalf("encoded TM frame length = %d, want %d", len(raw), TMFrameSize)
	}

	frame, err := codec.DecodeTM(raw, len(pdu))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame.PDU, pdu) {
		t.Errorf("decoded PDU = %q, want %q", frame.PDU, pdu)
	}
	if frame.IV != iv {
		t.Errorf("decoded IV = %x, want %x", frame.IV, iv)
	}
	if frame.MAC != mac {
		t.Errorf("decoded MAC = %x, want %x", frame.MAC, mac)
	}
}

func TestEncodeIdleTMIsFlagged(t *testing.T) {
	crc := NewCRCEngine()
	codec := NewFrameCodec(crc)
	raw := codec.EncodeIdleTM(0x42, 7, 1, 1)
	if len(raw) != TMFrameSize {
		t.Fatalf("idle TM frame length = %d, want %d", len(raw), TMFrameSize)
	}
	h, err := UnpackTMPrimaryHeader(raw)
	if err != nil {
		t.Fatal(err)
	}
	if h.FHP != IdleFrameFHP {
		t.Errorf("idle frame FHP = %#x, want %#x", h.FHP, IdleFrameFHP)
	}
}
