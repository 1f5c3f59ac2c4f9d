package sdls

import "fmt"

// KeyState is a key's lifecycle state (spec.md §3, §4.10).
type KeyState int

const (
	KeyStateNone KeyState = iota
	KeyStatePreActive
	KeyStateActive
	KeyStateDeactivated
	KeyStateDestroyed
	KeyStateCorrupted
)

func (s KeyState) String() string {
	switch s {
	case KeyStatePreActive:
		return "PreActive"
	case KeyStateActive:
		return "Active"
	case KeyStateDeactivated:
		return "Deactivated"
	case KeyStateDestroyed:
		return "Destroyed"
	case KeyStateCorrupted:
		return "Corrupted"
	default:
		return "None"
	}
}

// NumKeys is the fixed size of the key ring (spec.md §3).
const NumKeys = 256

// MasterKeyBoundary separates master keys [0, MasterKeyBoundary) from
// session keys [MasterKeyBoundary, NumKeys). Master keys are unmanageable
// by OTAR / state-change SDLS commands.
const MasterKeyBoundary = 128

// Key is a 256-bit key slot with a lifecycle state.
type Key struct {
	KID   int
	Value [KeySize]byte
	State KeyState
}

// IsMaster reports whether kid identifies a master key.
func IsMaster(kid int) bool { return kid < MasterKeyBoundary }

// KeyRing is the indexed store of NumKeys keys.
type KeyRing struct {
	keys [NumKeys]Key
}

// NewKeyRing returns a ring with every slot in state None and kid set.
func NewKeyRing() *KeyRing {
	kr := &KeyRing{}
	for i := range kr.keys {
		kr.keys[i].KID = i
	}
	return kr
}

// Get returns a copy of the key at kid.
func (kr *KeyRing) Get(kid int) (Key, error) {
	if kid < 0 || kid >= NumKeys {
		return Key{}, newErr("keyring.get", -1, ErrNotFound, "kid %d out of range", kid)
	}
	return kr.keys[kid], nil
}

// Install sets a key's value and state directly — used by engine init seed
// data and by OTAR to install an unwrapped session key (spec.md §4.7).
func (kr *KeyRing) Install(kid int, value []byte, state KeyState) error {
	if kid < 0 || kid >= NumKeys {
		return newErr("keyring.install", -1, ErrNotFound, "kid %d out of range", kid)
	}
	if len(value) != KeySize {
		return newErr("keyring.install", -1, ErrCryptoProvider, "key must be %d bytes", KeySize)
	}
	copy(kr.keys[kid].Value[:], value)
	kr.keys[kid].State = state
	return nil
}

// TransitionReason classifies why UpdateState failed. The EP interpreter
// writes it into the value of the KEY_TRANSITION_ERR event it logs; master-key
// rejections and ordinal rejections are logged under that same event code.
type TransitionReason int

const (
	TransitionOK TransitionReason = iota
	TransitionMasterKeyImmutable
	TransitionInvalidOrdinal
	TransitionNotFound
)

// UpdateState transitions the key at kid to target. It succeeds iff kid is
// a session key (kid >= MasterKeyBoundary) and the key's current state
// ordinal is exactly target-1 in the sequence PreActive(1) -> Active(2) ->
// Deactivated(3) -> Destroyed(4). Corrupted is terminal and not reachable
// via this call (spec.md §3, §4.10).
func (kr *KeyRing) UpdateState(kid int, target KeyState) (TransitionReason, error) {
	if kid < 0 || kid >= NumKeys {
		return TransitionNotFound, newErr("keyring.update_state", -1, ErrNotFound, "kid %d out of range", kid)
	}
	if IsMaster(kid) {
		return TransitionMasterKeyImmutable, newErr("keyring.update_state", -1, ErrState, "kid %d is a master key", kid)
	}
	cur := kr.keys[kid].State
	if target < KeyStatePreActive || target > KeyStateDestroyed {
		return TransitionInvalidOrdinal, newErr("keyring.update_state", -1, ErrState, "target state %v invalid", target)
	}
	if int(cur)+1 != int(target) {
		return TransitionInvalidOrdinal, newErr("keyring.update_state", -1, ErrState,
			"cannot transition kid %d from %v to %v", kid, cur, target)
	}
	kr.keys[kid].State = target
	return TransitionOK, nil
}

// Corrupt forces a key to the terminal Corrupted state. No CCSDS-defined key
// management command reaches it; the user-defined ModifyKey test procedure
// (ProcUserModifyKey) calls it to inject a key fault.
func (kr *KeyRing) Corrupt(kid int) error {
	if kid < 0 || kid >= NumKeys {
		return fmt.Errorf("%w: kid %d out of range", ErrNotFound, kid)
	}
	kr.keys[kid].State = KeyStateCorrupted
	return nil
}
