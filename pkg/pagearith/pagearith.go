// Package pagearith provides bit-shift arithmetic for power-of-two page
// sizes, used on the append/get hot paths so they never pay for an integer
// division or modulo.
package pagearith

import (
	"fmt"
	"math/bits"
)

// Shift holds the precomputed shift amount for a power-of-two size, so that
// multiplication, division and modulo against that size become single shift
// or mask instructions.
type Shift struct {
	bits uint
	mask uint64
}

// NewShift derives a Shift from a power-of-two size. It returns an error if
// size is zero or not a power of two.
func NewShift(size uint64) (Shift, error) {
	if size == 0 || size&(size-1) != 0 {
		return Shift{}, fmt.Errorf("pagearith: size %d is not a power of two", size)
	}

	b := uint(bits.TrailingZeros64(size))

	return Shift{bits: b, mask: size - 1}, nil
}

// MustNewShift is like NewShift but panics on error. Intended for
// package-level constants derived from literal power-of-two sizes.
func MustNewShift(size uint64) Shift {
	s, err := NewShift(size)
	if err != nil {
		panic(err)
	}

	return s
}

// Size returns the power-of-two size this Shift was derived from.
func (s Shift) Size() uint64 {
	return s.mask + 1
}

// Mul computes v * size.
func (s Shift) Mul(v uint64) uint64 {
	return v << s.bits
}

// Div computes v / size.
func (s Shift) Div(v uint64) uint64 {
	return v >> s.bits
}

// Mod computes v % size.
func (s Shift) Mod(v uint64) uint64 {
	return v & s.mask
}
