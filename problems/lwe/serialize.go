package lwe

import (
	"encoding/binary"
	"errors"
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/utils"
)

const maxNameLength = 64

func appendParams(buf []byte, p axiom.Parameters) []byte {
	buf = utils.AppendBytes(buf, []byte(p.Name))
	for _, v := range []uint64{p.Q, p.T, uint64(p.N), uint64(p.M), p.ErrorBound, p.NoiseBound} {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

func readParams(data []byte, offset int) (axiom.Parameters, int, error) {
	name, offset, err := utils.ReadBytes(data, offset, maxNameLength)
	if err != nil {
		return axiom.Parameters{}, offset, err
	}
	var vals [6]uint64
	for i := range vals {
		if vals[i], offset, err = utils.ReadUint64(data, offset); err != nil {
			return axiom.Parameters{}, offset, err
		}
	}
	if vals[2] > core.MaxDimension || vals[3] > core.MaxDimension {
		return axiom.Parameters{}, offset, fmt.Errorf("%w: dimension too large", axiom.ErrInvalidParameters)
	}
	p := axiom.Parameters{
		Name:       string(name),
		Q:          vals[0],
		T:          vals[1],
		N:          int(vals[2]),
		M:          int(vals[3]),
		ErrorBound: vals[4],
		NoiseBound: vals[5],
	}
	if err := core.ValidateParams(p); err != nil {
		return axiom.Parameters{}, offset, err
	}
	return p, offset, nil
}

// SerializePublicKey encodes the parameters, matrix seed and B vector.
// The matrix A is re-expanded from the seed on decode.
func SerializePublicKey(pk *axiom.PublicKey) []byte {
	buf := make([]byte, 0, 128+8*len(pk.B))
	buf = appendParams(buf, pk.Params)
	buf = utils.AppendBytes(buf, pk.Seed)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pk.B)))
	for _, v := range pk.B {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

// DeserializePublicKey decodes a public key and re-expands its matrix.
func DeserializePublicKey(data []byte) (*axiom.PublicKey, error) {
	if len(data) > utils.MaxPayloadLength {
		return nil, utils.ErrExceedsLimit
	}
	p, offset, err := readParams(data, 0)
	if err != nil {
		return nil, err
	}
	seed, offset, err := utils.ReadBytes(data, offset, SeedSize)
	if err != nil {
		return nil, err
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: matrix seed must be %d bytes", axiom.ErrInvalidSeed, SeedSize)
	}
	count, offset, err := utils.SafeReadLength(data, offset, core.MaxDimension)
	if err != nil {
		return nil, err
	}
	if count != p.M {
		return nil, fmt.Errorf("public key has %d samples, parameters require %d", count, p.M)
	}
	if err := utils.ValidateSliceAccess(data, offset, count*8); err != nil {
		return nil, err
	}
	B := make([]uint64, count)
	for i := range B {
		B[i] = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
		if B[i] >= p.Q {
			return nil, errors.New("public key coefficient out of range")
		}
	}
	if offset != len(data) {
		return nil, errors.New("trailing bytes after public key")
	}

	A, err := ExpandMatrix(seed, p)
	if err != nil {
		return nil, err
	}
	return &axiom.PublicKey{Seed: seed, A: A, B: B, Params: p}, nil
}

// SerializeSecretKey encodes the parameters and the ternary secret.
// The caller owns the returned buffer and should zeroize it after use.
func SerializeSecretKey(sk *axiom.SecretKey) []byte {
	buf := make([]byte, 0, 96+len(sk.S))
	buf = appendParams(buf, sk.Params)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sk.S)))
	for _, v := range sk.S {
		buf = append(buf, byte(v))
	}
	return buf
}

// DeserializeSecretKey decodes a secret key.
func DeserializeSecretKey(data []byte) (*axiom.SecretKey, error) {
	p, offset, err := readParams(data, 0)
	if err != nil {
		return nil, err
	}
	count, offset, err := utils.SafeReadLength(data, offset, core.MaxDimension)
	if err != nil {
		return nil, err
	}
	if count != p.N {
		return nil, fmt.Errorf("secret key has %d coefficients, parameters require %d", count, p.N)
	}
	if offset+count != len(data) {
		return nil, utils.ErrTruncated
	}
	s := make([]int8, count)
	for i := range s {
		v := int8(data[offset+i])
		if v < -1 || v > 1 {
			utils.ZeroizeInt8(s)
			return nil, errors.New("secret key coefficient out of range")
		}
		s[i] = v
	}
	return &axiom.SecretKey{S: s, Params: p}, nil
}

// SerializeCiphertext encodes a ciphertext as len(a), a, b and noise.
func SerializeCiphertext(ct *axiom.Ciphertext) []byte {
	buf := make([]byte, 0, 4+8*len(ct.A)+16)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ct.A)))
	for _, v := range ct.A {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	buf = binary.LittleEndian.AppendUint64(buf, ct.B)
	buf = binary.LittleEndian.AppendUint64(buf, ct.Noise)
	return buf
}

// DeserializeCiphertext decodes a ciphertext. Range checks against a
// modulus happen at decryption and evaluation time.
func DeserializeCiphertext(data []byte) (*axiom.Ciphertext, error) {
	count, offset, err := utils.SafeReadLength(data, 0, utils.MaxVectorLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", axiom.ErrInvalidCiphertext, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: empty mask", axiom.ErrInvalidCiphertext)
	}
	if offset+count*8+16 != len(data) {
		return nil, fmt.Errorf("%w: length mismatch", axiom.ErrInvalidCiphertext)
	}
	ct := &axiom.Ciphertext{A: make([]uint64, count)}
	for i := range ct.A {
		ct.A[i] = binary.LittleEndian.Uint64(data[offset:])
		offset += 8
	}
	ct.B = binary.LittleEndian.Uint64(data[offset:])
	ct.Noise = binary.LittleEndian.Uint64(data[offset+8:])
	return ct, nil
}
