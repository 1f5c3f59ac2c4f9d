package sdls

// Fixed field sizes used throughout the frame layouts (spec.md §3, §4.1).
const (
	OCFSize      = 4
	FECFSize     = 2
	TCPrimaryHdrSize = 5
	TMPrimaryHdrSize = 6
	// TCPadSize is extra trailer padding reserved ahead of the MAC field
	// in the legacy buffer-sizing formula (spec.md §4.5 step 4); it is
	// zero here because AES-GCM is a stream construction and needs no
	// block alignment. FrameCodec.EncodeTC's length computation does not
	// reference it.
	TCPadSize = 0
	// TMFrameSize is the fixed transfer frame size the codec zero-fills
	// to (spec.md §4.1): "any octet of the frame beyond populated data
	// is zero-filled". Not specified numerically; chosen to comfortably
	// hold a CCSDS packet plus security overhead.
	TMFrameSize = 1024
)

// TCPrimaryHeader is the CCSDS 232.0 TC transfer frame primary header
// (spec.md §4.1): tfvn(2)|bypass(1)|cc(1)|spare(2)|scid(10)|vcid(6)|fl(10)|fsn(8).
type TCPrimaryHeader struct {
	TFVN    byte
	Bypass  bool
	CC      bool
	Spare   byte
	SCID    uint16
	VCID    byte
	FL      uint16 // length minus one
	FSN     byte
}

// Pack encodes the primary header into 5 octets.
func (h TCPrimaryHeader) Pack() [TCPrimaryHdrSize]byte {
	var b0 uint8
	if h.Bypass {
		b0 = 1
	}
	var b1 uint8
	if h.CC {
		b1 = 1
	}
	v := uint64(h.TFVN&0x3)<<38 |
		uint64(b0&0x1)<<37 |
		uint64(b1&0x1)<<36 |
		uint64(h.Spare&0x3)<<34 |
		uint64(h.SCID&0x3FF)<<24 |
		uint64(h.VCID&0x3F)<<18 |
		uint64(h.FL&0x3FF)<<8 |
		uint64(h.FSN)

	var out [TCPrimaryHdrSize]byte
	out[0] = byte(v >> 32)
	out[1] = byte(v >> 24)
	out[2] = byte(v >> 16)
	out[3] = byte(v >> 8)
	out[4] = byte(v)
	return out
}

// UnpackTCPrimaryHeader decodes 5 octets into a TCPrimaryHeader.
func UnpackTCPrimaryHeader(b []byte) (TCPrimaryHeader, error) {
	if len(b) < TCPrimaryHdrSize {
		return TCPrimaryHeader{}, newErr("decode_tc", -1, ErrFraming, "short primary header")
	}
	v := uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
	return TCPrimaryHeader{
		TFVN:   byte((v >> 38) & 0x3),
		Bypass: (v>>37)&0x1 != 0,
		CC:     (v>>36)&0x1 != 0,
		Spare:  byte((v >> 34) & 0x3),
		SCID:   uint16((v >> 24) & 0x3FF),
		VCID:   byte((v >> 18) & 0x3F),
		FL:     uint16((v >> 8) & 0x3FF),
		FSN:    byte(v & 0xFF),
	}, nil
}

// TCSecurityHeader is the TC security header (spec.md §4.1):
// sh(1) | spi(2) | iv[shivf_len] | sn[shsnf_len] | pad[shplf_len].
type TCSecurityHeader struct {
	SH  byte
	SPI uint16
	IV  []byte
	SN  []byte
	Pad []byte
}

// TCFrame is the decoded representation of a TC transfer frame
// (spec.md §3).
type TCFrame struct {
	Primary  TCPrimaryHeader
	Security TCSecurityHeader
	PDU      []byte
	MAC      []byte
	FECF     uint16
}

// TMPrimaryHeader is the CCSDS 132.0 TM transfer frame primary header
// (spec.md §4.1), 6 octets.
type TMPrimaryHeader struct {
	TFVN     byte
	SCID     uint16
	VCID     byte
	OCFFlag  bool
	MCFC     byte
	VCFC     byte
	TFSH     bool
	Sync     bool
	POPF     bool
	SegLenID byte // 2 bits
	FHP      uint16 // 11 bits; 0xFE marks an idle frame (spec.md §4.1)
}

// Pack encodes the TM primary header into 6 octets.
func (h TMPrimaryHeader) Pack() [TMPrimaryHdrSize]byte {
	var ocff, tfsh, sync, popf uint8
	if h.OCFFlag {
		ocff = 1
	}
	if h.TFSH {
		tfsh = 1
	}
	if h.Sync {
		sync = 1
	}
	if h.POPF {
		popf = 1
	}
	w0 := uint16(h.TFVN&0x3)<<14 | uint16(h.SCID&0x3FF)<<4 | uint16(h.VCID&0x7)<<1 | uint16(ocff&0x1)
	w2 := uint16(tfsh&0x1)<<15 | uint16(sync&0x1)<<14 | uint16(popf&0x1)<<13 | uint16(h.SegLenID&0x3)<<11 | (h.FHP & 0x7FF)

	var out [TMPrimaryHdrSize]byte
	out[0] = byte(w0 >> 8)
	out[1] = byte(w0)
	out[2] = h.MCFC
	out[3] = h.VCFC
	out[4] = byte(w2 >> 8)
	out[5] = byte(w2)
	return out
}

// UnpackTMPrimaryHeader decodes 6 octets into a TMPrimaryHeader.
func UnpackTMPrimaryHeader(b []byte) (TMPrimaryHeader, error) {
	if len(b) < TMPrimaryHdrSize {
		return TMPrimaryHeader{}, newErr("decode_tm", -1, ErrFraming, "short primary header")
	}
	w0 := uint16(b[0])<<8 | uint16(b[1])
	w2 := uint16(b[4])<<8 | uint16(b[5])
	return TMPrimaryHeader{
		TFVN:     byte((w0 >> 14) & 0x3),
		SCID:     (w0 >> 4) & 0x3FF,
		VCID:     byte((w0 >> 1) & 0x7),
		OCFFlag:  w0&0x1 != 0,
		MCFC:     b[2],
		VCFC:     b[3],
		TFSH:     (w2>>15)&0x1 != 0,
		Sync:     (w2>>14)&0x1 != 0,
		POPF:     (w2>>13)&0x1 != 0,
		SegLenID: byte((w2 >> 11) & 0x3),
		FHP:      w2 & 0x7FF,
	}, nil
}

// TMFrame is the decoded representation of a TM transfer frame
// (spec.md §3, §4.1).
type TMFrame struct {
	Primary TMPrimaryHeader
	SPI     uint16
	IV      [IVSize]byte
	PDU     []byte
	MAC     [MACSize]byte
	OCF     [OCFSize]byte
	FECF    uint16
}

// IdleFrameFHP is the FHP value used to flag a zero-filled idle TM frame
// (spec.md §4.1).
const IdleFrameFHP = 0xFE

// IdleSPPPrefix is the Space Packet Protocol prefix written into idle
// frames (spec.md §4.1).
var IdleSPPPrefix = [2]byte{0x08, 0x90}
