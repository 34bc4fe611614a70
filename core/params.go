// Package core provides parameter sets and validation for axiom.
package core

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	axiom "github.com/BackendStack21/axiom-go"
)

const (
	// MaxModulusBits bounds Q so that every sum of two residues and every
	// rounding offset stays inside a uint64.
	MaxModulusBits = 63
	// MaxPlaintextBits bounds T: plaintexts travel as uint32.
	MaxPlaintextBits = 32
	// MaxDimension bounds N and M.
	MaxDimension = 1 << 14
)

// Names of the built-in parameter sets.
const (
	AXM1024 = "AXM-1024"
	AXM512  = "AXM-512"
	AXMToy  = "AXM-TOY"
)

// AXM1024Params is the default parameter set. With fresh noise at most
// (M+1)*8 = 8200 and B = 2^42 it supports on the order of 2^29 fresh
// additions before the budget is exhausted.
var AXM1024Params = axiom.Parameters{
	Name:       AXM1024,
	Q:          1 << 60,
	T:          1 << 16,
	N:          1024,
	M:          1024,
	ErrorBound: 8,
	NoiseBound: 1 << 42,
}

// AXM512Params trades plaintext space for smaller keys.
var AXM512Params = axiom.Parameters{
	Name:       AXM512,
	Q:          1 << 50,
	T:          1 << 12,
	N:          512,
	M:          512,
	ErrorBound: 8,
	NoiseBound: 1 << 36,
}

// AXMToyParams is small enough for exhaustive tests. Not for real data.
var AXMToyParams = axiom.Parameters{
	Name:       AXMToy,
	Q:          1 << 32,
	T:          1 << 8,
	N:          64,
	M:          64,
	ErrorBound: 4,
	NoiseBound: 1 << 22,
}

var named = map[string]axiom.Parameters{
	AXM1024: AXM1024Params,
	AXM512:  AXM512Params,
	AXMToy:  AXMToyParams,
}

// GetParams returns the parameter set with the given name.
func GetParams(name string) (axiom.Parameters, error) {
	p, ok := named[name]
	if !ok {
		return axiom.Parameters{}, fmt.Errorf("%w: unknown parameter set %q", axiom.ErrInvalidParameters, name)
	}
	return p, nil
}

// Names lists the built-in parameter sets in lexical order.
func Names() []string {
	out := make([]string, 0, len(named))
	for k := range named {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateParams checks a parameter set for consistency. Every violation is
// reported as axiom.ErrInvalidParameters.
func ValidateParams(p axiom.Parameters) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", axiom.ErrInvalidParameters, fmt.Sprintf(format, args...))
	}

	if p.T < 2 {
		return invalid("plaintext modulus must be at least 2, got %d", p.T)
	}
	if p.T > 1<<MaxPlaintextBits {
		return invalid("plaintext modulus exceeds 2^%d", MaxPlaintextBits)
	}
	if p.Q <= p.T {
		return invalid("ciphertext modulus %d must exceed plaintext modulus %d", p.Q, p.T)
	}
	if p.Q > 1<<MaxModulusBits {
		return invalid("ciphertext modulus exceeds 2^%d", MaxModulusBits)
	}
	if p.Q%p.T != 0 {
		return invalid("plaintext modulus %d must divide ciphertext modulus %d", p.T, p.Q)
	}
	if p.N <= 0 || p.N > MaxDimension {
		return invalid("dimension n=%d out of range (0, %d]", p.N, MaxDimension)
	}
	if p.M <= 0 || p.M > MaxDimension {
		return invalid("sample count m=%d out of range (0, %d]", p.M, MaxDimension)
	}
	if p.ErrorBound == 0 {
		return invalid("error bound must be positive")
	}
	if p.NoiseBound == 0 {
		return invalid("noise bound must be positive")
	}
	// Decryption rounds correctly only while |e| < Delta/2.
	if p.NoiseBound >= p.Delta()/2 {
		return invalid("noise bound %d must be below Q/(2T) = %d", p.NoiseBound, p.Delta()/2)
	}
	fresh, ok := FreshNoise(p)
	if !ok || fresh > p.NoiseBound {
		return invalid("fresh noise (m+1)*beta exceeds noise bound %d", p.NoiseBound)
	}
	return nil
}

// FreshNoise returns the worst-case noise of a fresh ciphertext, (M+1)*ErrorBound.
// ok is false if the bound does not fit in 64 bits.
func FreshNoise(p axiom.Parameters) (uint64, bool) {
	if p.M < 0 {
		return 0, false
	}
	return MulBound(uint64(p.M)+1, p.ErrorBound)
}

// AddBound returns a+b, ok=false on overflow.
func AddBound(a, b uint64) (uint64, bool) {
	var x, y uint256.Int
	x.SetUint64(a)
	y.SetUint64(b)
	x.Add(&x, &y)
	if !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// MulBound returns a*b, ok=false on overflow.
func MulBound(a, b uint64) (uint64, bool) {
	var x, y uint256.Int
	x.SetUint64(a)
	y.SetUint64(b)
	x.Mul(&x, &y)
	if !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// MustGetParams is GetParams for package-level initialization.
func MustGetParams(name string) axiom.Parameters {
	p, err := GetParams(name)
	if err != nil {
		panic(err)
	}
	return p
}
