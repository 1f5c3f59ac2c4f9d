package sdls

// SDLSAppID is the first 16 bits of the space packet primary header (version,
// type, secondary header flag and 11-bit APID 0x080) that mark a decrypted TC
// PDU as an SDLS Extended Procedure command rather than mission payload data
// (spec.md §4.6, §4.7). EncodeSdlsReply keeps only its APID bits.
const SDLSAppID = 0x1880

// PID identifies which EP procedure group a PDU's pid field selects
// (spec.md §4.7).
type PID byte

const (
	PIDKeyMgmt PID = 0
	PIDSAMgmt  PID = 1
	PIDSecMC   PID = 2
	PIDUser    PID = 3
)

// CCSDSPrimaryHeader is the space packet primary header wrapping an SDLS
// EP PDU (spec.md §4.7).
type CCSDSPrimaryHeader struct {
	PVN       byte // 3 bits
	Type      byte // 1 bit, 0 = command, 1 = reply
	SHF       bool // secondary header flag
	AppID     uint16
	SeqFlags  byte // 2 bits
	SeqCount  uint16
	PktLength uint16 // length of data field minus one
}

// Pack encodes the primary header into its 6-octet wire form.
func (h CCSDSPrimaryHeader) Pack() [6]byte {
	var t byte
	if h.Type == 1 {
		t = 1
	}
	var shf byte
	if h.SHF {
		shf = 1
	}
	w0 := uint16(h.PVN&0x7)<<13 | uint16(t&0x1)<<12 | uint16(shf&0x1)<<11 | (h.AppID & 0x7FF)
	w1 := uint16(h.SeqFlags&0x3)<<14 | (h.SeqCount & 0x3FFF)
	var out [6]byte
	out[0] = byte(w0 >> 8)
	out[1] = byte(w0)
	out[2] = byte(w1 >> 8)
	out[3] = byte(w1)
	out[4] = byte(h.PktLength >> 8)
	out[5] = byte(h.PktLength)
	return out
}

// UnpackCCSDSPrimaryHeader decodes a 6-octet primary header.
func UnpackCCSDSPrimaryHeader(b []byte) (CCSDSPrimaryHeader, error) {
	if len(b) < 6 {
		return CCSDSPrimaryHeader{}, newErr("decode_sdls_pdu", -1, ErrFraming, "short primary header")
	}
	w0 := uint16(b[0])<<8 | uint16(b[1])
	w1 := uint16(b[2])<<8 | uint16(b[3])
	return CCSDSPrimaryHeader{
		PVN:       byte((w0 >> 13) & 0x7),
		Type:      byte((w0 >> 12) & 0x1),
		SHF:       (w0>>11)&0x1 != 0,
		AppID:     w0 & 0x7FF,
		SeqFlags:  byte((w1 >> 14) & 0x3),
		SeqCount:  w1 & 0x3FFF,
		PktLength: uint16(b[4])<<8 | uint16(b[5]),
	}, nil
}

// PDU is the SDLS Extended Procedure TLV payload (spec.md §4.7):
// type(1 bit) | uf(1 bit) | sg(2 bits) | pid(4 bits) | len(2 octets) | data.
type PDU struct {
	Type byte // 0 = command, 1 = reply
	UF   bool // user flag
	SG   byte // service group, if applicable
	PID  PID
	Data []byte
}

// LPIDByte packs the {type, uf, sg, pid} tuple the way SecurityAssociation.LPID
// stores it, overwritten on every EP invocation before state gating
// (spec.md §4.7).
func (p PDU) LPIDByte() byte {
	var uf byte
	if p.UF {
		uf = 1
	}
	return (p.Type&0x1)<<7 | uf<<6 | (p.SG&0x3)<<4 | byte(p.PID&0xF)
}

// SdlsFrame is the fully decoded representation of a TC frame carrying an
// SDLS EP command: CCSDS primary header plus one TLV PDU (spec.md §4.7).
type SdlsFrame struct {
	Primary CCSDSPrimaryHeader
	PDU     PDU
}

// DecodeSdlsFrame parses the CCSDS packet wrapping an EP PDU out of a TC
// frame's decrypted PDU payload.
func DecodeSdlsFrame(data []byte) (SdlsFrame, error) {
	ph, err := UnpackCCSDSPrimaryHeader(data)
	if err != nil {
		return SdlsFrame{}, err
	}
	rest := data[6:]
	if len(rest) < 3 {
		return SdlsFrame{}, newErr("decode_sdls_pdu", -1, ErrFraming, "short PDU header")
	}
	typ := rest[0] >> 7
	uf := rest[0]&0x40 != 0
	sg := (rest[0] >> 4) & 0x3
	pid := PID(rest[0] & 0xF)
	pduLen := uint16(rest[1])<<8 | uint16(rest[2])
	if len(rest) < 3+int(pduLen) {
		return SdlsFrame{}, newErr("decode_sdls_pdu", -1, ErrFraming, "pdu length exceeds available data")
	}
	return SdlsFrame{
		Primary: ph,
		PDU: PDU{
			Type: typ,
			UF:   uf,
			SG:   sg,
			PID:  pid,
			Data: append([]byte(nil), rest[3:3+pduLen]...),
		},
	}, nil
}

// EncodeSdlsReply packs a reply PDU (type=1) into a complete CCSDS packet,
// mirroring the command framing (spec.md §4.7). The tag/length header is
// 3 octets: {type(1)|uf(1)|sg(2)|pid(4), pdu_len(2)}.
func EncodeSdlsReply(appID uint16, pid PID, data []byte) []byte {
	var hdrTLV [3]byte
	hdrTLV[0] = 1 << 7 // type=1 (reply)
	hdrTLV[0] |= byte(pid & 0xF)
	hdrTLV[1] = byte(len(data) >> 8)
	hdrTLV[2] = byte(len(data))

	ph := CCSDSPrimaryHeader{
		PVN:       0,
		Type:      1,
		AppID:     appID,
		PktLength: uint16(3 + len(data) - 1),
	}
	out := make([]byte, 0, 6+3+len(data))
	phb := ph.Pack()
	out = append(out, phb[:]...)
	out = append(out, hdrTLV[:]...)
	out = append(out, data...)
	return out
}
