package sdls

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in octets.
const KeySize = 32

// IVSize is the maximum GCM nonce length the engine supports (spec.md §3).
const IVSize = 12

// MACSize is the GCM authentication tag length in octets.
const MACSize = 16

// CryptoProvider is the external collaborator that performs the AES-256-GCM
// primitive. It is deliberately low-level — open/setkey/setiv/encrypt/
// decrypt/gettag/checktag/authenticate — so that a hardware accelerator can
// stand in for the software implementation below without touching the
// engine. Context is acquired with Open and must be released with Close on
// every exit path, including error paths (spec.md §5).
type CryptoProvider interface {
	// Open acquires the crypto context. It must be paired with Close.
	Open() error
	// Close releases the crypto context.
	Close()
	// SetKey loads a 256-bit key into the context.
	SetKey(key []byte) error
	// SetIV loads the GCM nonce (up to IVSize octets).
	SetIV(iv []byte) error
	// Encrypt produces ciphertext for plaintext under the current key/iv,
	// authenticating aad. The resulting tag is retrievable via GetTag.
	Encrypt(plaintext, aad []byte) (ciphertext []byte, err error)
	// Decrypt produces plaintext for ciphertext under the current key/iv.
	// It does not itself verify the authentication tag — call CheckTag
	// with the tag received on the wire to do that, mirroring hardware
	// primitives that separate keystream application from tag
	// verification.
	Decrypt(ciphertext, aad []byte) (plaintext []byte, err error)
	// GetTag returns the tag computed by the most recent Encrypt call.
	GetTag() []byte
	// CheckTag verifies a received tag against the most recent
	// Decrypt call's ciphertext/aad.
	CheckTag(tag []byte) error
	// Authenticate computes a GMAC-only tag over aad with no plaintext,
	// for the reserved authenticate-only TC mode (spec.md §4.5).
	Authenticate(aad []byte) (tag []byte, err error)
}

// AESGCMProvider is the software AES-256-GCM CryptoProvider implementation.
// Its building blocks (aes.NewCipher, cipher.NewGCMWithNonceSize) follow the
// same crypto/aes + crypto/cipher pairing the teacher uses in
// pkg/ntag424/crypto.go for CBC and ECB, generalized here to GCM.
type AESGCMProvider struct {
	opened bool
	block  cipher.Block
	gcm    cipher.AEAD
	iv     []byte

	lastTag        []byte
	lastCiphertext []byte
	lastAAD        []byte
}

// NewAESGCMProvider constructs an unopened provider.
func NewAESGCMProvider() *AESGCMProvider {
	return &AESGCMProvider{}
}

func (p *AESGCMProvider) Open() error {
	p.opened = true
	return nil
}

func (p *AESGCMProvider) Close() {
	p.opened = false
	p.block = nil
	p.gcm = nil
	p.iv = nil
	p.lastTag = nil
	p.lastCiphertext = nil
	p.lastAAD = nil
}

func (p *AESGCMProvider) requireOpen() error {
	if !p.opened {
		return fmt.Errorf("%w: provider not open", ErrCryptoProvider)
	}
	return nil
}

func (p *AESGCMProvider) SetKey(key []byte) error {
	if err := p.requireOpen(); err != nil {
		return err
	}
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", ErrCryptoProvider, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCryptoProvider, err)
	}
	p.block = block
	p.gcm = nil
	return nil
}

func (p *AESGCMProvider) SetIV(iv []byte) error {
	if err := p.requireOpen(); err != nil {
		return err
	}
	if p.block == nil {
		return fmt.Errorf("%w: key not set", ErrCryptoProvider)
	}
	if len(iv) == 0 || len(iv) > IVSize {
		return fmt.Errorf("%w: iv length %d out of range", ErrCryptoProvider, len(iv))
	}
	gcm, err := cipher.NewGCMWithNonceSize(p.block, len(iv))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCryptoProvider, err)
	}
	p.gcm = gcm
	p.iv = append([]byte(nil), iv...)
	return nil
}

func (p *AESGCMProvider) Encrypt(plaintext, aad []byte) ([]byte, error) {
	if err := p.requireReady(); err != nil {
		return nil, err
	}
	sealed := p.gcm.Seal(nil, p.iv, plaintext, aad)
	ct := sealed[:len(plaintext)]
	tag := sealed[len(plaintext):]
	p.lastTag = append([]byte(nil), tag...)
	return ct, nil
}

// Decrypt applies the GCM keystream to ciphertext without verifying the
// tag. It stores ciphertext/aad so a following CheckTag call can perform
// the real authenticity check.
func (p *AESGCMProvider) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	if err := p.requireReady(); err != nil {
		return nil, err
	}
	counter, err := gcmCounterBlock(p.block, p.iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoProvider, err)
	}
	stream := cipher.NewCTR(p.block, counter)
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)

	p.lastCiphertext = append([]byte(nil), ciphertext...)
	p.lastAAD = append([]byte(nil), aad...)
	return plaintext, nil
}

func (p *AESGCMProvider) GetTag() []byte {
	return append([]byte(nil), p.lastTag...)
}

func (p *AESGCMProvider) CheckTag(tag []byte) error {
	if err := p.requireReady(); err != nil {
		return err
	}
	combined := append(append([]byte(nil), p.lastCiphertext...), tag...)
	if _, err := p.gcm.Open(nil, p.iv, combined, p.lastAAD); err != nil {
		return fmt.Errorf("%w: %v", ErrMac, err)
	}
	return nil
}

func (p *AESGCMProvider) Authenticate(aad []byte) ([]byte, error) {
	if err := p.requireReady(); err != nil {
		return nil, err
	}
	sealed := p.gcm.Seal(nil, p.iv, nil, aad)
	return sealed, nil
}

func (p *AESGCMProvider) requireReady() error {
	if err := p.requireOpen(); err != nil {
		return err
	}
	if p.block == nil {
		return fmt.Errorf("%w: key not set", ErrCryptoProvider)
	}
	if p.gcm == nil || p.iv == nil {
		return fmt.Errorf("%w: iv not set", ErrCryptoProvider)
	}
	return nil
}

// gcmCounterBlock derives the CTR counter block GCM uses to encrypt the
// first block of plaintext/ciphertext, letting Decrypt apply the keystream
// directly instead of routing through the combined Open call. Per NIST SP
// 800-38D, a 96-bit nonce gives J0 = nonce||0x00000001, but J0 itself is
// consumed only as the tag mask (E(J0)) — the data keystream starts one
// block later, at inc32(J0) = nonce||0x00000002. Shorter nonces are
// zero-padded to the block boundary first, which is adequate for this
// engine's fixed 12-byte IVSize.
func gcmCounterBlock(block cipher.Block, iv []byte) ([]byte, error) {
	if block.BlockSize() != 16 {
		return nil, errors.New("unexpected block size")
	}
	counter := make([]byte, 16)
	copy(counter, iv)
	if len(iv) == 12 {
		counter[15] = 2
	}
	return counter, nil
}
