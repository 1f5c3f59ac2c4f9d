package sdls

import (
	"errors"
	"log/slog"
)

// Engine owns every piece of process-wide state the link-layer security
// pipeline needs: the SA table, key ring, event log, accumulated security
// report and OCF generator. Earlier CryptoLib-derived designs kept this in
// package-level globals; spec.md §9 calls that out as a defect the Go
// rewrite should not repeat, so it is consolidated into one value a caller
// constructs and owns (spec.md §5, §9).
type Engine struct {
	crc   *CRCEngine
	codec *FrameCodec
	sadb  *SADB
	keys  *KeyRing
	log   *EventLog
	ocf   *OCFGen
	rpt   Report
	ep    *Interpreter

	newCryptoProvider func() CryptoProvider

	metrics *Metrics
	logger  *slog.Logger
}

// Config supplies the collaborators Engine needs at construction; NewEngine
// fills sensible defaults (the software AES-GCM provider, slog.Default() as
// the logger, no metrics) when fields are left zero.
type Config struct {
	NewCryptoProvider func() CryptoProvider
	Logger            *slog.Logger
	Metrics           *Metrics
}

// NewEngine constructs an Engine with fresh, empty SA/key/log state. Call
// Init to seed it before processing frames.
func NewEngine(cfg Config) *Engine {
	if cfg.NewCryptoProvider == nil {
		cfg.NewCryptoProvider = func() CryptoProvider { return NewAESGCMProvider() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	crc := NewCRCEngine()
	e := &Engine{
		crc:               crc,
		codec:             NewFrameCodec(crc),
		sadb:              NewSADB(),
		keys:              NewKeyRing(),
		log:               NewEventLog(),
		ocf:               NewOCFGen(),
		newCryptoProvider: cfg.NewCryptoProvider,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
	}
	e.ep = NewInterpreter(e.keys, e.sadb, e.log, e.codec, &e.rpt, e.newCryptoProvider)
	return e
}

// KeySeed is one entry of the engine's fixed startup key material
// (spec.md §6).
type KeySeed struct {
	KID   int
	Value []byte
	State KeyState
}

// Init installs seed key material and is always called once before any
// frame is processed. It intentionally never seeds SAs: those are always
// provisioned via SA Create/Rekey/Start so the same state machine path is
// exercised in flight and at startup.
func (e *Engine) Init(seeds []KeySeed) error {
	for _, s := range seeds {
		if err := e.keys.Install(s.KID, s.Value, s.State); err != nil {
			return err
		}
	}
	return nil
}

// SADB exposes the Security Association table for provisioning by CLI
// tooling and config loaders.
func (e *Engine) SADB() *SADB { return e.sadb }

// KeyRing exposes the key ring for provisioning by CLI tooling and config
// loaders.
func (e *Engine) KeyRing() *KeyRing { return e.keys }

// EventLog exposes the tamper/security event log for operator tooling.
func (e *Engine) EventLog() *EventLog { return e.log }

// aadFromABM derives additional authenticated data for a TC frame by
// masking the frame prefix with the SA's ABM bit mask: each ABM octet is
// ANDed with the matching prefix octet, so a 1 bit keeps that prefix bit in
// the AAD and a 0 bit zeroes it (spec.md §4.5, §4.6).
func aadFromABM(prefix []byte, abm []byte, abmLen int) []byte {
	n := len(prefix)
	if abmLen > 0 && abmLen < n {
		n = abmLen
	}
	out := make([]byte, len(prefix))
	for i := 0; i < len(prefix); i++ {
		if i < n && i < len(abm) {
			out[i] = prefix[i] & abm[i]
		}
	}
	return out
}

// TCApply is the spec's ApplySecurity operation (spec.md §4.5): given a
// clear TC frame (primary header already populated with the unsecured
// length), look up the Operational SA bound to the frame's {scid, vcid},
// apply AES-256-GCM per the SA's EST/AST flags, and return the completed,
// FECF-stamped frame.
func (e *Engine) TCApply(primary TCPrimaryHeader, pdu []byte) ([]byte, error) {
	sa, err := e.sadb.FindOperationalTC(primary.SCID, primary.VCID)
	if err != nil {
		return nil, err
	}
	if !sa.EST && !sa.AST {
		// Clear mode: no security header content beyond SPI/IV/SN framing.
		iv := make([]byte, sa.ShivfLen)
		sn := make([]byte, sa.ShsnfLen)
		pad := make([]byte, sa.ShplfLen)
		mac := make([]byte, sa.StmacfLen)
		frame, err := e.codec.EncodeTC(sa, primary, iv, sn, pad, pdu, mac)
		if err != nil {
			return nil, err
		}
		e.metricApplied(sa.SPI)
		return frame, nil
	}

	key, err := e.keys.Get(sa.EKID)
	if err != nil {
		return nil, newErr("tc_apply", sa.SPI, ErrNotFound, "encryption key %d: %v", sa.EKID, err)
	}
	if key.State != KeyStateActive {
		return nil, newErr("tc_apply", sa.SPI, ErrState, "encryption key %d not active", sa.EKID)
	}

	cp := e.newCryptoProvider()
	if err := cp.Open(); err != nil {
		return nil, err
	}
	defer cp.Close()
	if err := cp.SetKey(key.Value[:]); err != nil {
		return nil, err
	}
	ivLen := sa.IvLen
	if ivLen <= 0 || ivLen > IVSize {
		ivLen = IVSize
	}
	// The frame carries the value one past the SA's stored IV; the stored
	// IV itself is advanced by TCProcess when the frame is accepted.
	iv, err := IncrementBE(sa.IV[:ivLen])
	if err != nil {
		return nil, newErr("tc_apply", sa.SPI, ErrOverflow, "iv exhausted")
	}
	if err := cp.SetIV(iv); err != nil {
		return nil, err
	}

	ph := primary.Pack()
	aad := aadFromABM(ph[:], sa.ABM[:], sa.AbmLen)

	var ciphertext, mac []byte
	switch {
	case sa.EST && sa.AST:
		ct, err := cp.Encrypt(pdu, aad)
		if err != nil {
			return nil, err
		}
		ciphertext = ct
		mac = cp.GetTag()
	case sa.AST:
		// Authenticate-only is reserved: not selectable by current SA
		// Create/Rekey inputs (spec.md §4.5, SPEC_FULL.md §5).
		return nil, newErr("tc_apply", sa.SPI, ErrPolicy, "authenticate-only mode reserved")
	default:
		// Encrypt-only is reserved for the same reason.
		return nil, newErr("tc_apply", sa.SPI, ErrPolicy, "encrypt-only mode reserved")
	}

	sn := make([]byte, sa.ShsnfLen)
	pad := make([]byte, sa.ShplfLen)
	frame, err := e.codec.EncodeTC(sa, primary, iv, sn, pad, ciphertext, mac)
	if err != nil {
		return nil, err
	}

	e.metricApplied(sa.SPI)
	return frame, nil
}

// TCProcess is the spec's ProcessSecurity operation (spec.md §4.6): decode
// a received TC frame, validate its SPI and anti-replay window, verify the
// FECF, decrypt and authenticate the payload, advance the SA's expected IV
// on success, and — if the frame's primary header app id names the SDLS
// app id — route the decrypted PDU to the Extended Procedure interpreter,
// returning any reply PDU bytes.
func (e *Engine) TCProcess(raw []byte) ([]byte, error) {
	primary, err := UnpackTCPrimaryHeader(raw)
	if err != nil {
		return nil, err
	}

	sa, err := e.sadb.FindOperationalTC(primary.SCID, primary.VCID)
	if err != nil {
		e.rpt.ISPIF = true
		e.log.Append(EventSPIInvalid, []byte("no operational sa"))
		return nil, newErr("tc_process", -1, ErrPolicy, "no operational sa for scid=%d vcid=%d", primary.SCID, primary.VCID)
	}

	frame, err := e.codec.DecodeTC(sa, raw)
	if err != nil {
		if errors.Is(err, ErrFecf) {
			e.log.Append(EventFECFError, []byte(frame.FECF2Bytes()))
		}
		return nil, err
	}

	if int(frame.Security.SPI) != sa.SPI {
		e.rpt.ISPIF = true
		e.log.Append(EventSPIInvalid, []byte{byte(frame.Security.SPI >> 8), byte(frame.Security.SPI)})
		return nil, newErr("tc_process", sa.SPI, ErrPolicy, "frame spi %d does not match operational sa", frame.Security.SPI)
	}

	ivLen := sa.IvLen
	if ivLen <= 0 || ivLen > IVSize {
		ivLen = IVSize
	}
	expected := sa.IV[:ivLen]
	received := frame.Security.IV
	if len(received) == 0 {
		received = expected
	}

	status := CheckWindow(received, expected, sa.WindowWidth())
	switch status {
	case Replayed:
		e.rpt.BSNF = true
		e.log.Append(EventIVReplayError, received)
		if e.metrics != nil {
			e.metrics.ReplayRejects.Inc()
		}
		return nil, newErr("tc_process", sa.SPI, ErrReplay, "iv already seen")
	case OutOfWindow:
		e.rpt.BSNF = true
		e.log.Append(EventIVWindowError, received)
		if e.metrics != nil {
			e.metrics.ReplayRejects.Inc()
		}
		return nil, newErr("tc_process", sa.SPI, ErrReplay, "iv outside anti-replay window")
	}

	var plaintext []byte
	if sa.EST || sa.AST {
		key, err := e.keys.Get(sa.EKID)
		if err != nil {
			return nil, err
		}
		cp := e.newCryptoProvider()
		if err := cp.Open(); err != nil {
			return nil, err
		}
		defer cp.Close()
		if err := cp.SetKey(key.Value[:]); err != nil {
			return nil, err
		}
		// Use the received wire IV, not the SA's pre-check expected IV, as
		// the AEAD nonce (SPEC_FULL.md §5 resolves this deviation
		// deliberately from the legacy source's use of the pre-advance
		// stored value).
		if err := cp.SetIV(received); err != nil {
			return nil, err
		}

		ph := frame.Primary.Pack()
		aad := aadFromABM(ph[:], sa.ABM[:], sa.AbmLen)

		pt, err := cp.Decrypt(frame.PDU, aad)
		if err != nil {
			return nil, err
		}
		if err := cp.CheckTag(frame.MAC); err != nil {
			e.rpt.BMACF = true
			e.log.Append(EventMACError, received)
			if e.metrics != nil {
				e.metrics.MacFailures.Inc()
			}
			return nil, err
		}
		plaintext = pt
	} else {
		plaintext = frame.PDU
	}

	copy(sa.IV[:ivLen], received)
	nextIV, err := IncrementBE(sa.IV[:ivLen])
	if err == nil {
		copy(sa.IV[:ivLen], nextIV)
	}
	e.rpt.SNVal = true
	e.rpt.LSPIU = uint16(sa.SPI)
	e.metricProcessed(sa.SPI)

	if primary.VCID != 0 || len(plaintext) < 6 {
		return nil, nil
	}
	if uint16(plaintext[0])<<8|uint16(plaintext[1]) != SDLSAppID {
		return nil, nil
	}
	sdlsFrame, err := DecodeSdlsFrame(plaintext)
	if err != nil {
		return nil, err
	}
	reply, err := e.ep.Dispatch(sdlsFrame.PDU, sa.SPI, received)
	if err != nil || reply == nil {
		return nil, err
	}
	return EncodeSdlsReply(SDLSAppID, sdlsFrame.PDU.PID, reply), nil
}

// FECF2Bytes renders a TCFrame's FECF as a 2-byte big-endian slice for
// event-log payloads.
func (f TCFrame) FECF2Bytes() string {
	return string([]byte{byte(f.FECF >> 8), byte(f.FECF)})
}

// TMApply is the spec's generate-and-secure-a-TM-frame operation
// (spec.md §4.8): encrypt pdu under the named SA, advance its IV, and pack
// the frame with an alternating CLCW/FSR operational control field.
func (e *Engine) TMApply(sa *SecurityAssociation, primary TMPrimaryHeader, pdu []byte) ([]byte, error) {
	key, err := e.keys.Get(sa.EKID)
	if err != nil {
		return nil, err
	}
	if key.State != KeyStateActive {
		return nil, newErr("tm_apply", sa.SPI, ErrState, "encryption key %d not active", sa.EKID)
	}

	cp := e.newCryptoProvider()
	if err := cp.Open(); err != nil {
		return nil, err
	}
	defer cp.Close()
	if err := cp.SetKey(key.Value[:]); err != nil {
		return nil, err
	}
	if err := cp.SetIV(sa.IV[:]); err != nil {
		return nil, err
	}

	ph := primary.Pack()
	aad := aadFromABM(ph[:], sa.ABM[:], sa.AbmLen)
	ct, err := cp.Encrypt(pdu, aad)
	if err != nil {
		return nil, err
	}
	var mac [MACSize]byte
	copy(mac[:], cp.GetTag())

	ocf := e.ocf.Next(primary.VCID, &e.rpt)

	frame, err := e.codec.EncodeTM(sa, primary, sa.IV, ct, mac, ocf)
	if err != nil {
		return nil, err
	}

	nextIV, err := IncrementBE(sa.IV[:])
	if err != nil {
		return nil, newErr("tm_apply", sa.SPI, ErrOverflow, "iv exhausted")
	}
	copy(sa.IV[:], nextIV)

	e.metricApplied(sa.SPI)
	return frame, nil
}

// TMProcess, AOSApply and AOSProcess are explicitly out of scope
// (SPEC_FULL.md §1): the TM downlink direction's frame security and the AOS
// transfer frame format are not implemented. They exist as named no-ops so
// callers attempting to wire them get a clear, typed error rather than a
// silent miscompile.
func (e *Engine) TMProcess(raw []byte) ([]byte, error) {
	return nil, newErr("tm_process", -1, ErrPolicy, "not implemented")
}

func (e *Engine) AOSApply(primary TMPrimaryHeader, pdu []byte) ([]byte, error) {
	return nil, newErr("aos_apply", -1, ErrPolicy, "not implemented")
}

func (e *Engine) AOSProcess(raw []byte) ([]byte, error) {
	return nil, newErr("aos_process", -1, ErrPolicy, "not implemented")
}
