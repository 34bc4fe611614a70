package utils

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Modulus performs arithmetic in Z_q for 2 <= q <= 2^63.
// Power-of-two moduli reduce with a mask; others with a 128-bit remainder.
type Modulus struct {
	Q    uint64
	mask uint64
	pow2 bool
}

// NewModulus returns arithmetic helpers for q.
func NewModulus(q uint64) Modulus {
	m := Modulus{Q: q}
	if q != 0 && q&(q-1) == 0 {
		m.pow2 = true
		m.mask = q - 1
	}
	return m
}

// Reduce returns x mod q.
func (m Modulus) Reduce(x uint64) uint64 {
	if m.pow2 {
		return x & m.mask
	}
	return x % m.Q
}

// Add returns a+b mod q for reduced operands.
func (m Modulus) Add(a, b uint64) uint64 {
	if m.pow2 {
		return (a + b) & m.mask
	}
	s := a + b
	if s >= m.Q {
		s -= m.Q
	}
	return s
}

// Sub returns a-b mod q for reduced operands.
func (m Modulus) Sub(a, b uint64) uint64 {
	if m.pow2 {
		return (a - b) & m.mask
	}
	if a >= b {
		return a - b
	}
	return a + m.Q - b
}

// Neg returns -a mod q.
func (m Modulus) Neg(a uint64) uint64 {
	return m.Sub(0, a)
}

// Mul returns a*b mod q.
func (m Modulus) Mul(a, b uint64) uint64 {
	if m.pow2 {
		return (a * b) & m.mask
	}
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi%m.Q, lo, m.Q)
}

// FromInt64 maps a signed integer into [0, q).
func (m Modulus) FromInt64(v int64) uint64 {
	if v >= 0 {
		return m.Reduce(uint64(v))
	}
	return m.Neg(m.Reduce(uint64(-(v + 1)) + 1))
}

// Centered returns the representative of x in (-q/2, q/2].
func (m Modulus) Centered(x uint64) int64 {
	x = m.Reduce(x)
	if x > m.Q/2 {
		return -int64(m.Q - x)
	}
	return int64(x)
}

// Dot returns <a, b> mod q.
func (m Modulus) Dot(a, b []uint64) uint64 {
	var acc uint64
	for i := range a {
		acc = m.Add(acc, m.Mul(a[i], b[i]))
	}
	return acc
}

// DotTernary returns <a, s> mod q for s in {-1, 0, 1}^n.
func (m Modulus) DotTernary(a []uint64, s []int8) uint64 {
	var acc uint64
	for i := range a {
		switch s[i] {
		case 1:
			acc = m.Add(acc, a[i])
		case -1:
			acc = m.Sub(acc, a[i])
		}
	}
	return acc
}

// Abs returns |v| as an unsigned value, including for the minimum integer.
func Abs[T constraints.Signed](v T) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}
