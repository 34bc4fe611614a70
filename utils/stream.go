package utils

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"

	"github.com/tuneinsight/lattigo/v4/utils"
)

// KeySize is the size of the keys fed to NewFrozenStream.
const KeySize = 32

// NewFrozenStream returns a deterministic byte stream keyed by the
// domain-separated hash of parts. Two streams built from the same domain and
// parts produce identical output on every platform.
func NewFrozenStream(domain string, parts ...[]byte) (io.Reader, error) {
	key := HashWithDomain(domain, HashConcat(parts...))
	prng, err := utils.NewKeyedPRNG(key)
	Zeroize(key)
	if err != nil {
		return nil, err
	}
	return prng, nil
}

// NewSecureStream returns the operating system CSPRNG.
func NewSecureStream() io.Reader {
	return RandReader
}

// Sampler draws integers from a byte stream. It is not safe for concurrent use.
type Sampler struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewSampler wraps a byte stream.
func NewSampler(r io.Reader) *Sampler {
	return &Sampler{r: bufio.NewReaderSize(r, 4096)}
}

// Uint64 reads 8 bytes as a little-endian integer.
func (s *Sampler) Uint64() (uint64, error) {
	if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s.buf[:]), nil
}

// Uniform returns a uniform integer in [0, q) by masked rejection sampling.
func (s *Sampler) Uniform(q uint64) (uint64, error) {
	if q == 0 {
		return 0, errors.New("sampler: zero modulus")
	}
	if q == 1 {
		return 0, nil
	}
	mask := uint64(1)<<bits.Len64(q-1) - 1
	for {
		v, err := s.Uint64()
		if err != nil {
			return 0, err
		}
		v &= mask
		if v < q {
			return v, nil
		}
	}
}

// Bounded returns a uniform integer in [-bound, bound].
func (s *Sampler) Bounded(bound uint64) (int64, error) {
	if bound > 1<<62 {
		return 0, errors.New("sampler: bound too large")
	}
	v, err := s.Uniform(2*bound + 1)
	if err != nil {
		return 0, err
	}
	return int64(v) - int64(bound), nil
}

// Bit returns a uniform bit.
func (s *Sampler) Bit() (uint8, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	return b & 1, nil
}

// Ternary returns a uniform value in {-1, 0, 1}.
func (s *Sampler) Ternary() (int8, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return 0, err
		}
		// 255 is the only byte value that would bias b % 3.
		if b < 255 {
			return int8(b%3) - 1, nil
		}
	}
}

// SampleTernaryVector returns n uniform values in {-1, 0, 1}.
func SampleTernaryVector(r io.Reader, n int) ([]int8, error) {
	s := NewSampler(r)
	out := make([]int8, n)
	for i := range out {
		v, err := s.Ternary()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SampleBoundedVector returns n uniform integers in [-bound, bound].
func SampleBoundedVector(r io.Reader, n int, bound uint64) ([]int64, error) {
	s := NewSampler(r)
	out := make([]int64, n)
	for i := range out {
		v, err := s.Bounded(bound)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

