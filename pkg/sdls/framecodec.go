package sdls

// FrameCodec encodes and decodes TC and TM transfer frames against a given
// SA's field-length configuration (spec.md §4.1). It owns the CRCEngine used
// to compute/verify the FECF.
type FrameCodec struct {
	crc *CRCEngine
}

// NewFrameCodec constructs a codec around an existing CRCEngine.
func NewFrameCodec(crc *CRCEngine) *FrameCodec {
	return &FrameCodec{crc: crc}
}

// EncodeTC assembles a complete TC transfer frame: primary header, security
// header, PDU, MAC and FECF, sized per the SA's *_len fields. mac may be nil
// when sa.StmacfLen is zero (clear or encrypt-only modes).
func (c *FrameCodec) EncodeTC(sa *SecurityAssociation, primary TCPrimaryHeader, iv, sn, pad, pdu, mac []byte) ([]byte, error) {
	if len(iv) != sa.ShivfLen || len(sn) != sa.ShsnfLen || len(pad) != sa.ShplfLen || len(mac) != sa.StmacfLen {
		return nil, newErr("encode_tc", sa.SPI, ErrFraming, "field length mismatch against SA configuration")
	}

	hdrLen := TCPrimaryHdrSize + 1 + 2 + sa.ShivfLen + sa.ShsnfLen + sa.ShplfLen
	bodyLen := hdrLen + len(pdu) + sa.StmacfLen + FECFSize
	primary.FL = uint16(bodyLen - 1)

	out := make([]byte, 0, bodyLen)
	ph := primary.Pack()
	out = append(out, ph[:]...)

	sh := byte(0)
	if sa.EST {
		sh |= 0x80
	}
	if sa.AST {
		sh |= 0x40
	}
	out = append(out, sh)
	out = append(out, byte(sa.SPI>>8), byte(sa.SPI))
	out = append(out, iv...)
	out = append(out, sn...)
	out = append(out, pad...)
	out = append(out, pdu...)
	out = append(out, mac...)

	fecf := c.crc.ComputeFECF(out)
	out = append(out, byte(fecf>>8), byte(fecf))
	return out, nil
}

// DecodeTC parses a TC transfer frame against sa's field-length
// configuration, verifying the FECF. The returned TCFrame.PDU aliases into
// raw; callers that retain it beyond the current call should copy it.
func (c *FrameCodec) DecodeTC(sa *SecurityAssociation, raw []byte) (TCFrame, error) {
	minLen := TCPrimaryHdrSize + 1 + 2 + sa.ShivfLen + sa.ShsnfLen + sa.ShplfLen + sa.StmacfLen + FECFSize
	if len(raw) < minLen {
		return TCFrame{}, newErr("decode_tc", sa.SPI, ErrFraming, "frame too short: got %d want >= %d", len(raw), minLen)
	}

	primary, err := UnpackTCPrimaryHeader(raw)
	if err != nil {
		return TCFrame{}, err
	}

	wantFECF := c.crc.ComputeFECF(raw[:len(raw)-FECFSize])
	gotFECF := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	if wantFECF != gotFECF {
		return TCFrame{}, newErr("decode_tc", sa.SPI, ErrFecf, "want %#04x got %#04x", wantFECF, gotFECF)
	}

	off := TCPrimaryHdrSize
	sh := raw[off]
	off++
	spi := uint16(raw[off])<<8 | uint16(raw[off+1])
	off += 2
	iv := raw[off : off+sa.ShivfLen]
	off += sa.ShivfLen
	sn := raw[off : off+sa.ShsnfLen]
	off += sa.ShsnfLen
	pad := raw[off : off+sa.ShplfLen]
	off += sa.ShplfLen

	pduEnd := len(raw) - FECFSize - sa.StmacfLen
	pdu := raw[off:pduEnd]
	mac := raw[pduEnd : pduEnd+sa.StmacfLen]

	return TCFrame{
		Primary: primary,
		Security: TCSecurityHeader{
			SH:  sh,
			SPI: spi,
			IV:  iv,
			SN:  sn,
			Pad: pad,
		},
		PDU:  pdu,
		MAC:  mac,
		FECF: gotFECF,
	}, nil
}

// EncodeTM assembles a fixed-size TM transfer frame (spec.md §4.1): primary
// header, security header {spi, iv}, PDU, trailer {mac, ocf, fecf}. Any
// octet beyond the populated data is zero-filled out to TMFrameSize.
func (c *FrameCodec) EncodeTM(sa *SecurityAssociation, primary TMPrimaryHeader, iv [IVSize]byte, pdu []byte, mac [MACSize]byte, ocf [OCFSize]byte) ([]byte, error) {
	bodyLen := TMPrimaryHdrSize + 2 + IVSize + len(pdu) + MACSize + OCFSize + FECFSize
	if bodyLen > TMFrameSize {
		return nil, newErr("encode_tm", sa.SPI, ErrFraming, "pdu too large for fixed frame size")
	}

	out := make([]byte, 0, TMFrameSize)
	ph := primary.Pack()
	out = append(out, ph[:]...)
	out = append(out, byte(sa.SPI>>8), byte(sa.SPI))
	out = append(out, iv[:]...)
	out = append(out, pdu...)
	out = append(out, mac[:]...)
	out = append(out, ocf[:]...)

	fecf := c.crc.ComputeFECF(out)
	out = append(out, byte(fecf>>8), byte(fecf))

	if len(out) < TMFrameSize {
		out = append(out, make([]byte, TMFrameSize-len(out))...)
	}
	return out, nil
}

// DecodeTM parses a fixed-size TM transfer frame, verifying the FECF over
// the populated prefix (everything up to and including the OCF).
func (c *FrameCodec) DecodeTM(raw []byte, pduLen int) (TMFrame, error) {
	minLen := TMPrimaryHdrSize + 2 + IVSize + pduLen + MACSize + OCFSize + FECFSize
	if len(raw) < minLen {
		return TMFrame{}, newErr("decode_tm", -1, ErrFraming, "frame too short: got %d want >= %d", len(raw), minLen)
	}

	primary, err := UnpackTMPrimaryHeader(raw)
	if err != nil {
		return TMFrame{}, err
	}

	fecfOff := minLen - FECFSize
	wantFECF := c.crc.ComputeFECF(raw[:fecfOff])
	gotFECF := uint16(raw[fecfOff])<<8 | uint16(raw[fecfOff+1])
	if wantFECF != gotFECF {
		return TMFrame{}, newErr("decode_tm", -1, ErrFecf, "want %#04x got %#04x", wantFECF, gotFECF)
	}

	off := TMPrimaryHdrSize
	spi := uint16(raw[off])<<8 | uint16(raw[off+1])
	off += 2

	var f TMFrame
	f.Primary = primary
	f.SPI = spi
	copy(f.IV[:], raw[off:off+IVSize])
	off += IVSize
	f.PDU = append([]byte(nil), raw[off:off+pduLen]...)
	off += pduLen
	copy(f.MAC[:], raw[off:off+MACSize])
	off += MACSize
	copy(f.OCF[:], raw[off:off+OCFSize])
	off += OCFSize
	f.FECF = gotFECF
	return f, nil
}

// EncodeIdleTM builds a zero-filled idle TM frame flagged via FHP,
// prefixed with the SPP idle marker (spec.md §4.1).
func (c *FrameCodec) EncodeIdleTM(scid uint16, vcid byte, mcfc, vcfc byte) []byte {
	primary := TMPrimaryHeader{
		TFVN: 0,
		SCID: scid,
		VCID: vcid,
		MCFC: mcfc,
		VCFC: vcfc,
		FHP:  IdleFrameFHP,
	}
	out := make([]byte, 0, TMFrameSize)
	ph := primary.Pack()
	out = append(out, ph[:]...)
	out = append(out, IdleSPPPrefix[0], IdleSPPPrefix[1])
	out = append(out, make([]byte, TMFrameSize-len(out))...)
	return out
}

// FrameErrorControlCompute is the spec's frame_error_control_compute(bytes)
// operation, exposed directly for callers outside EncodeTC/EncodeTM (e.g.
// the EP interpreter recomputing a FECF after an in-place modification).
func (c *FrameCodec) FrameErrorControlCompute(data []byte) uint16 {
	return c.crc.ComputeFECF(data)
}
