package sdls

import "math/big"

// ReplayStatus classifies a received IV/ARSN against an SA's expected value
// and window (spec.md §4.4, §8 property 5).
type ReplayStatus int

const (
	// InWindow means received is strictly greater than expected and no
	// more than window ahead — accept and advance.
	InWindow ReplayStatus = iota
	// OutOfWindow means received is more than window ahead of expected.
	OutOfWindow
	// Replayed means received is less than or equal to expected.
	Replayed
)

// CheckWindow implements the anti-replay window test: received is accepted
// iff it falls in the ordered set {expected+1, ..., expected+window}
// (spec.md §8 property 5). received and expected must be equal-length,
// big-endian byte slices.
func CheckWindow(received, expected []byte, window uint64) ReplayStatus {
	r := new(big.Int).SetBytes(received)
	e := new(big.Int).SetBytes(expected)
	diff := new(big.Int).Sub(r, e)
	if diff.Sign() <= 0 {
		return Replayed
	}
	if diff.Cmp(new(big.Int).SetUint64(window)) > 0 {
		return OutOfWindow
	}
	return InWindow
}

// CompareLE reports whether received <= expected, comparing all bytes
// big-endian (most-significant-first). spec.md §9.3 flags the legacy
// Crypto_compare_less_equal as comparing only length-1 bytes (dropping the
// LSB) as likely unintentional; this implementation compares every byte.
func CompareLE(received, expected []byte) bool {
	r := new(big.Int).SetBytes(received)
	e := new(big.Int).SetBytes(expected)
	return r.Cmp(e) <= 0
}

// IncrementBE increments a big-endian byte counter by one, carrying from
// the least-significant byte toward the most-significant. It returns
// ErrOverflow if the most-significant byte would carry out (spec.md §4.4,
// §8 S2).
func IncrementBE(iv []byte) ([]byte, error) {
	out := append([]byte(nil), iv...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out, nil
		}
		out[i] = 0x00
		if i == 0 {
			return nil, ErrOverflow
		}
	}
	return out, nil
}
