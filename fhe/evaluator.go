package fhe

import (
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/utils"
)

// Evaluator performs homomorphic operations for one parameter set. Every
// operation computes the resulting noise bound first and refuses to run with
// axiom.ErrNoiseBudgetExceeded if the bound would pass the noise limit.
// Inputs are never modified. An Evaluator is safe for concurrent use.
type Evaluator struct {
	params axiom.Parameters
	mod    utils.Modulus
	fresh  uint64
}

// NewEvaluator returns an evaluator for params.
func NewEvaluator(params axiom.Parameters) (*Evaluator, error) {
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}
	fresh, _ := core.FreshNoise(params)
	return &Evaluator{params: params, mod: utils.NewModulus(params.Q), fresh: fresh}, nil
}

// Params returns the evaluator parameters.
func (ev *Evaluator) Params() axiom.Parameters { return ev.params }

func (ev *Evaluator) check(cts ...*axiom.Ciphertext) error {
	for _, ct := range cts {
		if ct == nil {
			return fmt.Errorf("%w: nil ciphertext", axiom.ErrInvalidCiphertext)
		}
		if len(ct.A) != ev.params.N {
			return fmt.Errorf("%w: dimension %d, want %d", axiom.ErrIncompatibleCiphertexts, len(ct.A), ev.params.N)
		}
		if ct.B >= ev.params.Q {
			return fmt.Errorf("%w: b out of range", axiom.ErrInvalidCiphertext)
		}
	}
	return nil
}

func (ev *Evaluator) budget(noise uint64, ok bool) error {
	if !ok || noise > ev.params.NoiseBound {
		return fmt.Errorf("%w: bound %d", axiom.ErrNoiseBudgetExceeded, ev.params.NoiseBound)
	}
	return nil
}

func (ev *Evaluator) combine(a, b *axiom.Ciphertext, op func(x, y uint64) uint64) (*axiom.Ciphertext, error) {
	if err := ev.check(a, b); err != nil {
		return nil, err
	}
	noise, ok := core.AddBound(a.Noise, b.Noise)
	if err := ev.budget(noise, ok); err != nil {
		return nil, err
	}
	out := &axiom.Ciphertext{A: make([]uint64, len(a.A)), Noise: noise}
	for i := range a.A {
		out.A[i] = op(ev.mod.Reduce(a.A[i]), ev.mod.Reduce(b.A[i]))
	}
	out.B = op(a.B, b.B)
	return out, nil
}

// Add returns an encryption of m1 + m2 mod T. Noise bounds add.
func (ev *Evaluator) Add(a, b *axiom.Ciphertext) (*axiom.Ciphertext, error) {
	return ev.combine(a, b, ev.mod.Add)
}

// Sub returns an encryption of m1 - m2 mod T. Noise bounds add.
func (ev *Evaluator) Sub(a, b *axiom.Ciphertext) (*axiom.Ciphertext, error) {
	return ev.combine(a, b, ev.mod.Sub)
}

// Sum adds all ciphertexts. The combined bound is checked before any work.
func (ev *Evaluator) Sum(cts ...*axiom.Ciphertext) (*axiom.Ciphertext, error) {
	if len(cts) == 0 {
		return nil, fmt.Errorf("%w: empty sum", axiom.ErrInvalidCiphertext)
	}
	if err := ev.check(cts...); err != nil {
		return nil, err
	}
	var total uint64
	ok := true
	for _, ct := range cts {
		if total, ok = core.AddBound(total, ct.Noise); !ok {
			break
		}
	}
	if err := ev.budget(total, ok); err != nil {
		return nil, err
	}

	out := &axiom.Ciphertext{A: make([]uint64, ev.params.N), Noise: total}
	for _, ct := range cts {
		for i := range out.A {
			out.A[i] = ev.mod.Add(out.A[i], ev.mod.Reduce(ct.A[i]))
		}
		out.B = ev.mod.Add(out.B, ct.B)
	}
	return out, nil
}

// AddPlain returns an encryption of m1 + m mod T. Noise is unchanged.
func (ev *Evaluator) AddPlain(ct *axiom.Ciphertext, m uint32) (*axiom.Ciphertext, error) {
	if err := ev.check(ct); err != nil {
		return nil, err
	}
	if uint64(m) >= ev.params.T {
		return nil, fmt.Errorf("%w: %d >= %d", axiom.ErrPlaintextOutOfRange, m, ev.params.T)
	}
	out := &axiom.Ciphertext{A: append([]uint64(nil), ct.A...), Noise: ct.Noise}
	out.B = ev.mod.Add(ct.B, ev.mod.Mul(ev.params.Delta(), uint64(m)))
	return out, nil
}

// Scale returns an encryption of k*m mod T. The noise bound is multiplied by |k|.
func (ev *Evaluator) Scale(ct *axiom.Ciphertext, k int64) (*axiom.Ciphertext, error) {
	if err := ev.check(ct); err != nil {
		return nil, err
	}
	noise, ok := core.MulBound(ct.Noise, utils.Abs(k))
	if err := ev.budget(noise, ok); err != nil {
		return nil, err
	}
	kk := ev.mod.FromInt64(k)
	out := &axiom.Ciphertext{A: make([]uint64, len(ct.A)), Noise: noise}
	for i, v := range ct.A {
		out.A[i] = ev.mod.Mul(ev.mod.Reduce(v), kk)
	}
	out.B = ev.mod.Mul(ct.B, kk)
	return out, nil
}

// Negate returns an encryption of -m mod T.
func (ev *Evaluator) Negate(ct *axiom.Ciphertext) (*axiom.Ciphertext, error) {
	return ev.Scale(ct, -1)
}

// NoiseEstimate returns the tracked worst-case noise of ct.
func (ev *Evaluator) NoiseEstimate(ct *axiom.Ciphertext) uint64 {
	return ct.Noise
}

// Budget returns the noise that can still be absorbed before decryption fails.
func (ev *Evaluator) Budget(ct *axiom.Ciphertext) uint64 {
	if ct.Noise >= ev.params.NoiseBound {
		return 0
	}
	return ev.params.NoiseBound - ct.Noise
}

// MaxAdditions returns how many fresh ciphertexts can still be added to ct.
func (ev *Evaluator) MaxAdditions(ct *axiom.Ciphertext) uint64 {
	return ev.Budget(ct) / ev.fresh
}

// FreshNoise returns the noise bound of a freshly encrypted ciphertext.
func (ev *Evaluator) FreshNoise() uint64 { return ev.fresh }
