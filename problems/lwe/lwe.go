// Package lwe implements the raw Learning-With-Errors primitive used by axiom:
// public matrix expansion, key generation, encryption of scaled plaintexts and
// phase decoding. Noise accounting and mode handling live in package fhe.
package lwe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/utils"
)

const (
	DomainMatrix = "axiom-lwe-matrix-v1"
	DomainSecret = "axiom-lwe-secret-v1"
	DomainError  = "axiom-lwe-error-v1"
)

// SeedSize is the size of the public matrix seed.
const SeedSize = 32

// parallelRows is the number of rows below which work stays on one goroutine.
const parallelRows = 64

// forRows runs fn over [0, m) split across GOMAXPROCS workers.
// The first error returned by any worker wins.
func forRows(m int, fn func(start, end int) error) error {
	numWorkers := runtime.GOMAXPROCS(0)
	if m < parallelRows || numWorkers <= 1 {
		return fn(0, m)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	rowsPerWorker := (m + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > m {
			end = m
		}
		if start >= m {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			if err := fn(start, end); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// ExpandMatrix derives the M x N public matrix from a 32-byte seed. Each row
// is drawn from its own keyed stream, so rows are expanded in parallel and the
// result does not depend on the number of workers.
func ExpandMatrix(seed []byte, p axiom.Parameters) ([]uint64, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: matrix seed must be %d bytes", axiom.ErrInvalidSeed, SeedSize)
	}
	size, err := utils.SafeMultiply(p.M, p.N)
	if err != nil || size > utils.MaxMatrixElements {
		return nil, fmt.Errorf("%w: matrix too large", axiom.ErrInvalidParameters)
	}

	A := make([]uint64, size)
	err = forRows(p.M, func(start, end int) error {
		var idx [4]byte
		for i := start; i < end; i++ {
			binary.LittleEndian.PutUint32(idx[:], uint32(i))
			stream, err := utils.NewFrozenStream(DomainMatrix, seed, idx[:])
			if err != nil {
				return err
			}
			s := utils.NewSampler(stream)
			row := A[i*p.N : (i+1)*p.N]
			for j := range row {
				if row[j], err = s.Uniform(p.Q); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return A, nil
}

// KeyGen derives a key pair from seed. The same parameters and seed always
// yield a bit-identical key pair.
func KeyGen(p axiom.Parameters, seed []byte) (*axiom.KeyPair, error) {
	if err := core.ValidateParams(p); err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: empty seed", axiom.ErrInvalidSeed)
	}

	matrixSeed := utils.HashWithDomain(DomainMatrix, seed)
	A, err := ExpandMatrix(matrixSeed, p)
	if err != nil {
		return nil, err
	}

	secretStream, err := utils.NewFrozenStream(DomainSecret, seed)
	if err != nil {
		return nil, err
	}
	s, err := utils.SampleTernaryVector(secretStream, p.N)
	if err != nil {
		return nil, err
	}

	errorStream, err := utils.NewFrozenStream(DomainError, seed)
	if err != nil {
		utils.ZeroizeInt8(s)
		return nil, err
	}
	e, err := utils.SampleBoundedVector(errorStream, p.M, p.ErrorBound)
	if err != nil {
		utils.ZeroizeInt8(s)
		return nil, err
	}

	// B = A*s + e mod Q
	mod := utils.NewModulus(p.Q)
	B := make([]uint64, p.M)
	_ = forRows(p.M, func(start, end int) error {
		for i := start; i < end; i++ {
			B[i] = mod.Add(mod.DotTernary(A[i*p.N:(i+1)*p.N], s), mod.FromInt64(e[i]))
		}
		return nil
	})
	for i := range e {
		e[i] = 0
	}

	return &axiom.KeyPair{
		PublicKey: axiom.PublicKey{Seed: matrixSeed, A: A, B: B, Params: p},
		SecretKey: axiom.SecretKey{S: s, Params: p},
	}, nil
}

// Encrypt encrypts the scaled plaintext Delta*m using randomness drawn from
// rnd: r in {0,1}^M and e' in [-beta, beta]. The ciphertext is
// (A^T r, <B, r> + e' + Delta*m) with noise bound (M+1)*beta.
func Encrypt(pk *axiom.PublicKey, m uint64, rnd io.Reader) (*axiom.Ciphertext, error) {
	p := pk.Params
	if m >= p.T {
		return nil, fmt.Errorf("%w: %d >= %d", axiom.ErrPlaintextOutOfRange, m, p.T)
	}
	if len(pk.B) != p.M || len(pk.A) != p.M*p.N {
		return nil, errors.New("lwe: public key does not match its parameters")
	}
	fresh, ok := core.FreshNoise(p)
	if !ok {
		return nil, axiom.ErrInvalidParameters
	}

	s := utils.NewSampler(rnd)
	mod := utils.NewModulus(p.Q)
	a := make([]uint64, p.N)
	var b uint64
	for i := 0; i < p.M; i++ {
		bit, err := s.Bit()
		if err != nil {
			return nil, err
		}
		if bit == 0 {
			continue
		}
		row := pk.A[i*p.N : (i+1)*p.N]
		for j := range a {
			a[j] = mod.Add(a[j], row[j])
		}
		b = mod.Add(b, pk.B[i])
	}
	e, err := s.Bounded(p.ErrorBound)
	if err != nil {
		return nil, err
	}
	b = mod.Add(b, mod.FromInt64(e))
	b = mod.Add(b, mod.Mul(p.Delta(), m))

	return &axiom.Ciphertext{A: a, B: b, Noise: fresh}, nil
}

// Phase returns b - <a, s> mod Q, i.e. Delta*m + e.
func Phase(sk *axiom.SecretKey, ct *axiom.Ciphertext) (uint64, error) {
	p := sk.Params
	if len(ct.A) != p.N || len(sk.S) != p.N {
		return 0, fmt.Errorf("%w: dimension %d, want %d", axiom.ErrInvalidCiphertext, len(ct.A), p.N)
	}
	if ct.B >= p.Q {
		return 0, fmt.Errorf("%w: b out of range", axiom.ErrInvalidCiphertext)
	}
	mod := utils.NewModulus(p.Q)
	for _, v := range ct.A {
		if v >= p.Q {
			return 0, fmt.Errorf("%w: a out of range", axiom.ErrInvalidCiphertext)
		}
	}
	return mod.Sub(ct.B, mod.DotTernary(ct.A, sk.S)), nil
}

// Decode rounds a phase to the nearest multiple of Delta. It returns the
// plaintext floor((phase + Delta/2) / Delta) mod T and the implied noise
// phase - Delta*m, centered in (-Q/2, Q/2].
func Decode(p axiom.Parameters, phase uint64) (uint64, int64) {
	delta := p.Delta()
	m := ((phase + delta/2) / delta) % p.T
	mod := utils.NewModulus(p.Q)
	noise := mod.Centered(mod.Sub(phase, mod.Mul(delta, m)))
	return m, noise
}
