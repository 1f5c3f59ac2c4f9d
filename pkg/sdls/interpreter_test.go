package sdls

import (
	"encoding/binary"
	"testing"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *KeyRing, *SADB, *EventLog) {
	t.Helper()
	keys := NewKeyRing()
	sadb := NewSADB()
	log := NewEventLog()
	codec := NewFrameCodec(NewCRCEngine())
	var rpt Report
	ip := NewInterpreter(keys, sadb, log, codec, &rpt, func() CryptoProvider { return NewAESGCMProvider() })
	return ip, keys, sadb, log
}

func TestInterpreterOTARInstallsSessionKeyPreActive(t *testing.T) {
	ip, keys, sadb, _ := newTestInterpreter(t)
	_ = sadb.Create(0, SAConfig{}, 0)

	masterKey := testKey()
	_ = keys.Install(10, masterKey, KeyStateActive)

	sessionValue := make([]byte, KeySize)
	sessionValue[0] = 0x42
	wrapIV := testIV(9)

	cp := NewAESGCMProvider()
	_ = cp.Open()
	_ = cp.SetKey(masterKey)
	_ = cp.SetIV(wrapIV)
	ekid := byte(200)
	wrapped, err := cp.Encrypt(sessionValue, []byte{ekid})
	if err != nil {
		t.Fatal(err)
	}
	tag := cp.GetTag()
	cp.Close()

	body := []byte{10, 1} // mkid=10, 1 block
	body = append(body, ekid)
	body = append(body, wrapIV...)
	body = append(body, wrapped...)
	body = append(body, tag...)

	pdu := PDU{Type: 0, PID: PIDKeyMgmt, Data: append([]byte{ProcOTAR}, body...)}
	if _, err := ip.Dispatch(pdu, 0, nil); err != nil {
		t.Fatalf("Dispatch OTAR: %v", err)
	}

	k, err := keys.Get(200)
	if err != nil {
		t.Fatal(err)
	}
	if k.State != KeyStatePreActive {
		t.Errorf("installed key state = %v, want PreActive", k.State)
	}
	if k.Value != sessionValueArray(sessionValue) {
		t.Errorf("installed key value mismatch")
	}
}

func sessionValueArray(b []byte) [KeySize]byte {
	var out [KeySize]byte
	copy(out[:], b)
	return out
}

func TestInterpreterOTARRejectsNonMasterKID(t *testing.T) {
	ip, _, sadb, _ := newTestInterpreter(t)
	_ = sadb.Create(0, SAConfig{}, 0)
	body := []byte{200, 0} // mkid=200 is a session key id, not a master key
	pdu := PDU{Type: 0, PID: PIDKeyMgmt, Data: append([]byte{ProcOTAR}, body...)}
	if _, err := ip.Dispatch(pdu, 0, nil); err == nil {
		t.Fatal("OTAR should reject a non-master mkid")
	}
}

func TestInterpreterKeyLifecycleTransitions(t *testing.T) {
	ip, keys, sadb, _ := newTestInterpreter(t)
	_ = sadb.Create(0, SAConfig{}, 0)
	_ = keys.Install(200, make([]byte, KeySize), KeyStatePreActive)

	activate := PDU{Type: 0, PID: PIDKeyMgmt, Data: []byte{ProcKeyActivate, 200}}
	if _, err := ip.Dispatch(activate, 0, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	k, _ := keys.Get(200)
	if k.State != KeyStateActive {
		t.Fatalf("state = %v, want Active", k.State)
	}

	deactivate := PDU{Type: 0, PID: PIDKeyMgmt, Data: []byte{ProcKeyDeactivate, 200}}
	if _, err := ip.Dispatch(deactivate, 0, nil); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	destroy := PDU{Type: 0, PID: PIDKeyMgmt, Data: []byte{ProcKeyDestroy, 200}}
	if _, err := ip.Dispatch(destroy, 0, nil); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	k, _ = keys.Get(200)
	if k.State != KeyStateDestroyed {
		t.Fatalf("state = %v, want Destroyed", k.State)
	}
}

func TestInterpreterSACreateRekeyStart(t *testing.T) {
	ip, _, sadb, _ := newTestInterpreter(t)

	spiBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(spiBytes, 5)

	createPDU := PDU{Type: 0, PID: PIDSAMgmt, Data: append([]byte{ProcSACreate}, spiBytes...)}
	if _, err := ip.Dispatch(createPDU, 5, nil); err != nil {
		t.Fatalf("sa_create: %v", err)
	}

	rekeyBody := append(append([]byte{}, spiBytes...), 200)
	rekeyBody = append(rekeyBody, make([]byte, IVSize)...)
	rekeyPDU := PDU{Type: 0, PID: PIDSAMgmt, Data: append([]byte{ProcSARekey}, rekeyBody...)}
	if _, err := ip.Dispatch(rekeyPDU, 5, nil); err != nil {
		t.Fatalf("sa_rekey: %v", err)
	}

	gvcid := make([]byte, 5)
	gvcid[1] = 0x00
	gvcid[2] = 0x42
	gvcid[3] = 1
	startBody := append(append([]byte{}, spiBytes...), gvcid...)
	startPDU := PDU{Type: 0, PID: PIDSAMgmt, Data: append([]byte{ProcSAStart}, startBody...)}
	if _, err := ip.Dispatch(startPDU, 5, nil); err != nil {
		t.Fatalf("sa_start: %v", err)
	}

	sa, err := sadb.Get(5)
	if err != nil {
		t.Fatal(err)
	}
	if sa.State != SAStateOperational {
		t.Fatalf("state = %v, want Operational", sa.State)
	}
}

func TestInterpreterMCPingAndLogStatus(t *testing.T) {
	ip, _, sadb, _ := newTestInterpreter(t)
	_ = sadb.Create(0, SAConfig{}, 0)

	ping := PDU{Type: 0, PID: PIDSecMC, Data: []byte{ProcMCPing}}
	reply, err := ip.Dispatch(ping, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply) != 0 {
		t.Errorf("ping reply = %q, want empty", reply)
	}

	status := PDU{Type: 0, PID: PIDSecMC, Data: []byte{ProcMCLogStatus}}
	reply, err = ip.Dispatch(status, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply) != 2 {
		t.Errorf("log status reply length = %d, want 2", len(reply))
	}
}

func TestInterpreterResetAlarmClearsReport(t *testing.T) {
	keys := NewKeyRing()
	sadb := NewSADB()
	log := NewEventLog()
	codec := NewFrameCodec(NewCRCEngine())
	rpt := Report{AF: true, BSNF: true, BMACF: true, ISPIF: true}
	ip := NewInterpreter(keys, sadb, log, codec, &rpt, func() CryptoProvider { return NewAESGCMProvider() })
	_ = sadb.Create(0, SAConfig{}, 0)

	reset := PDU{Type: 0, PID: PIDSecMC, Data: []byte{ProcMCResetAlarm}}
	if _, err := ip.Dispatch(reset, 0, nil); err != nil {
		t.Fatal(err)
	}
	if rpt.AF || rpt.BSNF || rpt.BMACF || rpt.ISPIF {
		t.Errorf("report not cleared: %+v", rpt)
	}
}

func TestInterpreterKeyVerify(t *testing.T) {
	ip, keys, sadb, _ := newTestInterpreter(t)
	_ = sadb.Create(0, SAConfig{}, 0)
	_ = keys.Install(200, testKey(), KeyStateActive)

	frameIV := testIV(7)
	challenge := make([]byte, ChallengeSize)
	challenge[0] = 0x11

	body := make([]byte, 0, 2+ChallengeSize)
	body = append(body, 0, 200)
	body = append(body, challenge...)

	verify := PDU{Type: 0, PID: PIDKeyMgmt, Data: append([]byte{ProcKeyVerify}, body...)}
	reply, err := ip.Dispatch(verify, 0, frameIV)
	if err != nil {
		t.Fatal(err)
	}
	wantLen := 2 + IVSize + ChallengeSize + ChallengeMACSize
	if len(reply) != wantLen {
		t.Fatalf("key verify reply length = %d, want %d", len(reply), wantLen)
	}
	if binary.BigEndian.Uint16(reply[0:2]) != 200 {
		t.Errorf("reply kid = %d, want 200", binary.BigEndian.Uint16(reply[0:2]))
	}
	gotIV := reply[2 : 2+IVSize]
	wantIV := append([]byte(nil), frameIV...)
	wantIV[IVSize-1]++
	if string(gotIV) != string(wantIV) {
		t.Errorf("reply iv = %x, want %x", gotIV, wantIV)
	}
}

func TestInterpreterSetsLPIDBeforeGating(t *testing.T) {
	ip, _, sadb, _ := newTestInterpreter(t)

	// sa_rekey on a None-state SA fails the state gate, but LPID must still
	// have been overwritten first (spec.md §4.7).
	rekeyPDU := PDU{Type: 0, PID: PIDSAMgmt, Data: []byte{ProcSARekey, 0, 0, 200}}
	_, _ = ip.Dispatch(rekeyPDU, 0, nil)

	sa, _ := sadb.Get(0)
	if sa.LPID != rekeyPDU.LPIDByte() {
		t.Errorf("LPID = %#02x, want %#02x", sa.LPID, rekeyPDU.LPIDByte())
	}
}
