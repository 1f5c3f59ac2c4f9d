package sdls

import (
	"encoding/binary"
	"fmt"
)

// Procedure codes within each PID group's PDU.Data[0] (spec.md §4.7). The
// interpreter dispatches on {PID, procedure} as a tagged enum — one
// exhaustive switch per group, no virtual dispatch — mirroring the way the
// teacher's AuthError/SWError taxonomies stay closed, enumerable sets
// (pkg/ntag424/errors.go).
const (
	ProcOTAR          = 0x01
	ProcKeyActivate   = 0x02
	ProcKeyDeactivate = 0x03
	ProcKeyDestroy    = 0x04
	ProcKeyVerify     = 0x05
	ProcKeyInventory  = 0x06

	ProcSACreate   = 0x10
	ProcSADelete   = 0x11
	ProcSASetARSN  = 0x12
	ProcSASetARSNW = 0x13
	ProcSARekey    = 0x14
	ProcSAExpire   = 0x15
	ProcSAStart    = 0x16
	ProcSAStop     = 0x17
	ProcSAReadARSN = 0x18
	ProcSAStatus   = 0x19

	ProcMCPing       = 0x20
	ProcMCLogStatus  = 0x21
	ProcMCDumpLog    = 0x22
	ProcMCEraseLog   = 0x23
	ProcMCSelfTest   = 0x24
	ProcMCResetAlarm = 0x25

	ProcUserIdleTrigger   = 0x30
	ProcUserBadSPI        = 0x31
	ProcUserBadIV         = 0x32
	ProcUserBadMAC        = 0x33
	ProcUserBadFECF       = 0x34
	ProcUserModifyKey     = 0x35
	ProcUserModifyActiveTM = 0x36
	ProcUserModifyVCID    = 0x37
)

// Interpreter executes SDLS Extended Procedure PDUs against the engine's
// key ring, SA table and event log (spec.md §4.7).
type Interpreter struct {
	keys  *KeyRing
	sadb  *SADB
	log   *EventLog
	codec *FrameCodec
	rpt   *Report
	newCryptoProvider func() CryptoProvider
}

// NewInterpreter wires an interpreter to the engine's shared state. rpt is
// the engine's latched alarm report, cleared by the Reset Alarm procedure.
func NewInterpreter(keys *KeyRing, sadb *SADB, log *EventLog, codec *FrameCodec, rpt *Report, newCryptoProvider func() CryptoProvider) *Interpreter {
	return &Interpreter{keys: keys, sadb: sadb, log: log, codec: codec, rpt: rpt, newCryptoProvider: newCryptoProvider}
}

// Dispatch executes one EP PDU. spi names the SA the carrying TC frame was
// processed under (its LPID is overwritten with the PDU's {type,uf,sg,pid}
// byte before any state gating, per spec.md §4.7); frameIV is the carrying
// frame's verified IV, needed by Key Verify's challenge-response IV
// derivation. A nil reply means the command produced no EP reply PDU.
func (ip *Interpreter) Dispatch(pdu PDU, spi int, frameIV []byte) ([]byte, error) {
	if pdu.Type == 1 {
		// Reply-type PDUs arriving as commands are logged and dropped.
		ip.log.Append(EventSPIInvalid, []byte("unexpected reply pdu"))
		return nil, nil
	}

	if sa, err := ip.sadb.Get(spi); err == nil {
		sa.LPID = pdu.LPIDByte()
	}

	if len(pdu.Data) < 1 {
		return nil, newErr("ep_dispatch", spi, ErrFraming, "empty pdu")
	}
	proc := pdu.Data[0]
	body := pdu.Data[1:]

	lpid := pdu.LPIDByte()

	switch pdu.PID {
	case PIDKeyMgmt:
		return ip.dispatchKeyMgmt(proc, body, frameIV)
	case PIDSAMgmt:
		return ip.dispatchSAMgmt(proc, body, spi, lpid)
	case PIDSecMC:
		return ip.dispatchSecMC(proc, body)
	case PIDUser:
		return ip.dispatchUser(proc, body, spi)
	default:
		return nil, newErr("ep_dispatch", spi, ErrPolicy, "unknown pid %d", pdu.PID)
	}
}

// --- Key Management ---

func (ip *Interpreter) dispatchKeyMgmt(proc byte, body []byte, frameIV []byte) ([]byte, error) {
	switch proc {
	case ProcOTAR:
		return nil, ip.otar(body)
	case ProcKeyActivate:
		return nil, ip.keyTransition(body, KeyStateActive, EventKeyStateErr)
	case ProcKeyDeactivate:
		return nil, ip.keyTransition(body, KeyStateDeactivated, EventKeyStateErr)
	case ProcKeyDestroy:
		return nil, ip.keyTransition(body, KeyStateDestroyed, EventKeyStateErr)
	case ProcKeyVerify:
		return ip.keyVerify(body, frameIV)
	case ProcKeyInventory:
		return ip.keyInventory(body)
	default:
		return nil, newErr("ep_key_mgmt", -1, ErrPolicy, "unknown procedure %#02x", proc)
	}
}

// otarBlockSize is the wire size of one OTAR key block: ekid(1) + iv(IVSize)
// + wrapped key(KeySize) + tag(MACSize).
const otarBlockSize = 1 + IVSize + KeySize + MACSize

// otar implements Over The Air Rekeying: each session key is wrapped with
// AES-256-GCM under the named master key. Every block must decrypt and
// authenticate before any key is installed — partial success is not
// acceptable (spec.md §8 property 7, all-or-nothing OTAR).
func (ip *Interpreter) otar(body []byte) error {
	if len(body) < 2 {
		return newErr("otar", -1, ErrFraming, "short otar command")
	}
	mkid := int(body[0])
	n := int(body[1])
	rest := body[2:]

	if !IsMaster(mkid) {
		ip.log.Append(EventMKIDInvalid, []byte(fmt.Sprintf("mkid=%d", mkid)))
		return newErr("otar", -1, ErrPolicy, "mkid %d is not a master key", mkid)
	}
	mk, err := ip.keys.Get(mkid)
	if err != nil || mk.State != KeyStateActive {
		ip.log.Append(EventMKIDInvalid, []byte(fmt.Sprintf("mkid=%d", mkid)))
		return newErr("otar", -1, ErrPolicy, "master key %d not active", mkid)
	}
	if len(rest) < n*otarBlockSize {
		return newErr("otar", -1, ErrFraming, "short otar block data")
	}

	type pending struct {
		kid   int
		value []byte
	}
	staged := make([]pending, 0, n)

	for i := 0; i < n; i++ {
		blk := rest[i*otarBlockSize : (i+1)*otarBlockSize]
		ekid := int(blk[0])
		iv := blk[1 : 1+IVSize]
		wrapped := blk[1+IVSize : 1+IVSize+KeySize]
		tag := blk[1+IVSize+KeySize : 1+IVSize+KeySize+MACSize]

		cp := ip.newCryptoProvider()
		if err := cp.Open(); err != nil {
			return err
		}
		defer cp.Close()
		if err := cp.SetKey(mk.Value[:]); err != nil {
			ip.log.Append(EventOTARMasterErr, []byte(fmt.Sprintf("ekid=%d", ekid)))
			return err
		}
		if err := cp.SetIV(iv); err != nil {
			ip.log.Append(EventOTARMasterErr, []byte(fmt.Sprintf("ekid=%d", ekid)))
			return err
		}
		plain, err := cp.Decrypt(wrapped, []byte{byte(ekid)})
		if err != nil {
			ip.log.Append(EventOTARMasterErr, []byte(fmt.Sprintf("ekid=%d", ekid)))
			return err
		}
		if err := cp.CheckTag(tag); err != nil {
			ip.log.Append(EventOTARMasterErr, []byte(fmt.Sprintf("ekid=%d", ekid)))
			return newErr("otar", -1, ErrAuth, "block %d for ekid %d failed authentication", i, ekid)
		}
		staged = append(staged, pending{kid: ekid, value: plain})
	}

	for _, p := range staged {
		if err := ip.keys.Install(p.kid, p.value, KeyStatePreActive); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Interpreter) keyTransition(body []byte, target KeyState, failEvent string) error {
	if len(body) < 1 {
		return newErr("ep_key_mgmt", -1, ErrFraming, "short key transition command")
	}
	kid := int(body[0])
	reason, err := ip.keys.UpdateState(kid, target)
	if err != nil {
		ip.log.Append(failEvent, []byte(fmt.Sprintf("kid=%d reason=%d", kid, reason)))
		return err
	}
	return nil
}

// ChallengeSize is the octet length of one Key Verify challenge/response
// block (spec.md §4.7).
const ChallengeSize = 16

// ChallengeMACSize is the tag length appended to each Key Verify reply
// block (spec.md §4.7).
const ChallengeMACSize = MACSize

// keyVerifyBlockSize is the wire size of one Key Verify command block:
// kid(2) + challenge(ChallengeSize).
const keyVerifyBlockSize = 2 + ChallengeSize

// keyVerify implements the challenge-response Key Verify procedure: the
// payload is a run of {kid(2), challenge(ChallengeSize)} blocks. Each is
// AES-256-GCM-encrypted under ek_ring[kid] using the carrying TC frame's IV
// with its last octet incremented by blockIndex+1 (mod 256, no carry
// propagation), and the reply block is
// {kid(2), iv(IVSize), ciphertext(ChallengeSize), tag(ChallengeMACSize)}
// (spec.md §4.7).
func (ip *Interpreter) keyVerify(body []byte, frameIV []byte) ([]byte, error) {
	if len(body) == 0 || len(body)%keyVerifyBlockSize != 0 {
		return nil, newErr("key_verify", -1, ErrFraming, "malformed key verify command")
	}
	n := len(body) / keyVerifyBlockSize

	cp := ip.newCryptoProvider()
	if err := cp.Open(); err != nil {
		return nil, err
	}
	defer cp.Close()

	reply := make([]byte, 0, n*keyVerifyReplyBlockSize())
	for i := 0; i < n; i++ {
		blk := body[i*keyVerifyBlockSize : (i+1)*keyVerifyBlockSize]
		kid := int(binary.BigEndian.Uint16(blk[0:2]))
		challenge := blk[2 : 2+ChallengeSize]

		k, err := ip.keys.Get(kid)
		if err != nil {
			return nil, err
		}
		if err := cp.SetKey(k.Value[:]); err != nil {
			return nil, err
		}

		iv := make([]byte, IVSize)
		copy(iv, frameIV)
		iv[IVSize-1] += byte(i + 1)
		if err := cp.SetIV(iv); err != nil {
			return nil, err
		}
		ciphertext, err := cp.Encrypt(challenge, nil)
		if err != nil {
			return nil, err
		}

		reply = append(reply, byte(kid>>8), byte(kid))
		reply = append(reply, iv...)
		reply = append(reply, ciphertext...)
		reply = append(reply, cp.GetTag()...)
	}
	return reply, nil
}

func keyVerifyReplyBlockSize() int {
	return 2 + IVSize + ChallengeSize + ChallengeMACSize
}

// keyInventory replies with the state of every key in [kid_first, kid_last).
func (ip *Interpreter) keyInventory(body []byte) ([]byte, error) {
	if len(body) < 4 {
		return nil, newErr("key_inventory", -1, ErrFraming, "short key inventory command")
	}
	first := int(binary.BigEndian.Uint16(body[0:2]))
	last := int(binary.BigEndian.Uint16(body[2:4]))
	rng := last - first
	if rng < 0 {
		rng = 0
	}
	reply := make([]byte, 2, 2+rng*3)
	binary.BigEndian.PutUint16(reply, uint16(rng))
	for kid := first; kid < last; kid++ {
		if kid >= NumKeys {
			break
		}
		k, _ := ip.keys.Get(kid)
		reply = append(reply, byte(kid>>8), byte(kid), byte(k.State))
	}
	return reply, nil
}

// --- SA Management ---

func (ip *Interpreter) dispatchSAMgmt(proc byte, body []byte, spi int, lpid byte) ([]byte, error) {
	switch proc {
	case ProcSACreate:
		return nil, ip.saCreate(body, lpid)
	case ProcSADelete:
		return nil, ip.sadbAction(body, func(s int, pid byte) error { return ip.sadb.Delete(s, pid) }, lpid)
	case ProcSASetARSN:
		return nil, ip.saSetARSN(body, lpid)
	case ProcSASetARSNW:
		return nil, ip.saSetARSNW(body, lpid)
	case ProcSARekey:
		return nil, ip.saRekey(body, lpid)
	case ProcSAExpire:
		return nil, ip.sadbAction(body, func(s int, pid byte) error { return ip.sadb.Expire(s, pid) }, lpid)
	case ProcSAStart:
		return nil, ip.saStart(body, lpid)
	case ProcSAStop:
		return nil, ip.sadbAction(body, func(s int, pid byte) error { return ip.sadb.Stop(s, pid) }, lpid)
	case ProcSAReadARSN:
		return ip.saReadARSN(body)
	case ProcSAStatus:
		return ip.saStatus(body)
	default:
		return nil, newErr("ep_sa_mgmt", -1, ErrPolicy, "unknown procedure %#02x", proc)
	}
}

func (ip *Interpreter) sadbAction(body []byte, action func(spi int, pid byte) error, lpid byte) error {
	if len(body) < 2 {
		return newErr("ep_sa_mgmt", -1, ErrFraming, "short sa command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	if err := action(spi, lpid); err != nil {
		ip.log.Append(EventSATransitionErr, []byte(fmt.Sprintf("spi=%d", spi)))
		return err
	}
	return nil
}

func (ip *Interpreter) saCreate(body []byte, lpid byte) error {
	if len(body) < 2 {
		return newErr("sa_create", -1, ErrFraming, "short sa_create command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	cfg := SAConfig{EST: true, AST: true, ShivfLen: IVSize, StmacfLen: MACSize, IvLen: IVSize}
	if err := ip.sadb.Create(spi, cfg, lpid); err != nil {
		ip.log.Append(EventSATransitionErr, []byte(fmt.Sprintf("spi=%d", spi)))
		return err
	}
	return nil
}

func (ip *Interpreter) saRekey(body []byte, lpid byte) error {
	if len(body) < 3 {
		return newErr("sa_rekey", -1, ErrFraming, "short sa_rekey command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	ekid := int(body[2])
	iv := body[3:]
	if err := ip.sadb.Rekey(spi, ekid, iv, lpid); err != nil {
		ip.log.Append(EventSATransitionErr, []byte(fmt.Sprintf("spi=%d", spi)))
		return err
	}
	return nil
}

func (ip *Interpreter) saStart(body []byte, lpid byte) error {
	if len(body) < 2 {
		return newErr("sa_start", -1, ErrFraming, "short sa_start command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	var list []GVCID
	for len(rest) >= 5 {
		list = append(list, GVCID{
			TFVN: rest[0],
			SCID: binary.BigEndian.Uint16(rest[1:3]),
			VCID: rest[3],
		})
		rest = rest[5:]
	}
	if err := ip.sadb.Start(spi, list, lpid); err != nil {
		ip.log.Append(EventSATransitionErr, []byte(fmt.Sprintf("spi=%d", spi)))
		return err
	}
	return nil
}

func (ip *Interpreter) saSetARSN(body []byte, lpid byte) error {
	if len(body) < 2 {
		return newErr("sa_set_arsn", -1, ErrFraming, "short sa_set_arsn command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	return ip.sadb.SetARSN(spi, body[2:], lpid)
}

func (ip *Interpreter) saSetARSNW(body []byte, lpid byte) error {
	if len(body) < 2 {
		return newErr("sa_set_arsnw", -1, ErrFraming, "short sa_set_arsnw command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	return ip.sadb.SetARSNW(spi, body[2:], lpid)
}

// saReadARSN replies with the SA's IV minus one, the last value it actually
// accepted rather than the next one expected (spec.md §4.7 ReadARSN
// semantics).
func (ip *Interpreter) saReadARSN(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, newErr("sa_read_arsn", -1, ErrFraming, "short sa_read_arsn command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	sa, err := ip.sadb.Get(spi)
	if err != nil {
		return nil, err
	}
	n := sa.IvLen
	if n <= 0 || n > IVSize {
		n = IVSize
	}
	cur := append([]byte(nil), sa.IV[:n]...)
	for i := n - 1; i >= 0; i-- {
		if cur[i] != 0 {
			cur[i]--
			break
		}
		cur[i] = 0xFF
	}
	return cur, nil
}

func (ip *Interpreter) saStatus(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, newErr("sa_status", -1, ErrFraming, "short sa_status command")
	}
	spi := int(binary.BigEndian.Uint16(body[0:2]))
	sa, err := ip.sadb.Get(spi)
	if err != nil {
		return nil, err
	}
	return []byte{byte(sa.SPI >> 8), byte(sa.SPI), byte(sa.State), sa.LPID}, nil
}

// --- Security Monitoring & Control ---

func (ip *Interpreter) dispatchSecMC(proc byte, body []byte) ([]byte, error) {
	switch proc {
	case ProcMCPing:
		return []byte{}, nil
	case ProcMCLogStatus:
		s := ip.log.Summary()
		return []byte{byte(s.NumSE), byte(s.RS)}, nil
	case ProcMCDumpLog:
		return ip.dumpLog(), nil
	case ProcMCEraseLog:
		ip.log.Erase()
		return nil, nil
	case ProcMCSelfTest:
		return []byte{0x01}, nil
	case ProcMCResetAlarm:
		if ip.rpt != nil {
			ip.rpt.AF = false
			ip.rpt.BSNF = false
			ip.rpt.BMACF = false
			ip.rpt.ISPIF = false
		}
		return nil, nil
	default:
		return nil, newErr("ep_sec_mc", -1, ErrPolicy, "unknown procedure %#02x", proc)
	}
}

func (ip *Interpreter) dumpLog() []byte {
	events := ip.log.Events()
	out := make([]byte, 0, len(events)*(1+1+EMVSize))
	for _, e := range events {
		out = append(out, byte(len(e.EMT)))
		out = append(out, []byte(e.EMT)...)
		out = append(out, byte(e.EMLen))
		out = append(out, e.EMV[:]...)
	}
	return out
}

// --- User test-toggle PDUs ---

// dispatchUser implements the fault-injection toggles used by ground test
// campaigns to exercise each rejection path deterministically (spec.md §4.7,
// §8 test scenarios). Most of these act on the named SA's stored fields so
// the NEXT TCProcess call observably fails the matching check.
func (ip *Interpreter) dispatchUser(proc byte, body []byte, spi int) ([]byte, error) {
	sa, err := ip.sadb.Get(spi)
	if err != nil {
		return nil, err
	}
	switch proc {
	case ProcUserIdleTrigger:
		return nil, nil
	case ProcUserBadSPI:
		sa.GvcidTC = [NumGVCID]GVCID{} // drop channel bindings so the next lookup misses
		return nil, nil
	case ProcUserBadIV:
		for i := range sa.IV {
			sa.IV[i] ^= 0xFF
		}
		return nil, nil
	case ProcUserBadMAC:
		if sa.StmacfLen > 0 {
			sa.EKID ^= 0xFF // flip the GCM key binding so the next MAC check fails
		}
		return nil, nil
	case ProcUserBadFECF:
		return nil, nil
	case ProcUserModifyKey:
		if len(body) < 1 {
			return nil, newErr("ep_user", spi, ErrFraming, "short modify key command")
		}
		return nil, ip.keys.Corrupt(int(body[0]))
	case ProcUserModifyActiveTM:
		return nil, nil
	case ProcUserModifyVCID:
		if len(body) < 1 {
			return nil, newErr("ep_user", spi, ErrFraming, "short modify vcid command")
		}
		for i := range sa.GvcidTC {
			sa.GvcidTC[i].VCID = body[0]
		}
		return nil, nil
	default:
		return nil, newErr("ep_user", spi, ErrPolicy, "unknown procedure %#02x", proc)
	}
}
