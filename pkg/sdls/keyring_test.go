package sdls

import (
	"errors"
	"testing"
)

func TestKeyRingInstallAndGet(t *testing.T) {
	kr := NewKeyRing()
	value := make([]byte, KeySize)
	value[0] = 0xAB
	if err := kr.Install(200, value, KeyStatePreActive); err != nil {
		t.Fatal(err)
	}
	k, err := kr.Get(200)
	if err != nil {
		t.Fatal(err)
	}
	if k.State != KeyStatePreActive {
		t.Errorf("state = %v, want PreActive", k.State)
	}
	if k.Value[0] != 0xAB {
		t.Errorf("value[0] = %#02x, want 0xab", k.Value[0])
	}
}

func TestKeyRingUpdateStateSequence(t *testing.T) {
	kr := NewKeyRing()
	_ = kr.Install(200, make([]byte, KeySize), KeyStatePreActive)

	if reason, err := kr.UpdateState(200, KeyStateActive); err != nil {
		t.Fatalf("PreActive->Active should succeed: %v (reason=%v)", err, reason)
	}
	if reason, err := kr.UpdateState(200, KeyStateDestroyed); err == nil {
		t.Fatalf("Active->Destroyed should be rejected, skipping Deactivated (reason=%v)", reason)
	}
	if _, err := kr.UpdateState(200, KeyStateDeactivated); err != nil {
		t.Fatalf("Active->Deactivated should succeed: %v", err)
	}
	if _, err := kr.UpdateState(200, KeyStateDestroyed); err != nil {
		t.Fatalf("Deactivated->Destroyed should succeed: %v", err)
	}
}

func TestKeyRingMasterKeyImmutable(t *testing.T) {
	kr := NewKeyRing()
	_ = kr.Install(5, make([]byte, KeySize), KeyStatePreActive)
	reason, err := kr.UpdateState(5, KeyStateActive)
	if err == nil {
		t.Fatal("master key state should be immutable via UpdateState")
	}
	if reason != TransitionMasterKeyImmutable {
		t.Errorf("reason = %v, want TransitionMasterKeyImmutable", reason)
	}
}

func TestKeyRingCorruptIsTerminal(t *testing.T) {
	kr := NewKeyRing()
	_ = kr.Install(200, make([]byte, KeySize), KeyStateActive)
	if err := kr.Corrupt(200); err != nil {
		t.Fatal(err)
	}
	k, _ := kr.Get(200)
	if k.State != KeyStateCorrupted {
		t.Errorf("state = %v, want Corrupted", k.State)
	}
}

func TestIsMaster(t *testing.T) {
	if !IsMaster(0) || !IsMaster(MasterKeyBoundary - 1) {
		t.Error("expected keys below the boundary to be master keys")
	}
	if IsMaster(MasterKeyBoundary) || IsMaster(NumKeys - 1) {
		t.Error("expected keys at/above the boundary to be session keys")
	}
}

func TestKeyRingGetOutOfRange(t *testing.T) {
	kr := NewKeyRing()
	_, err := kr.Get(NumKeys)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
