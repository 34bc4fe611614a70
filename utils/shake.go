package utils

import (
	"encoding/binary"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

const (
	// MaxHashConcatInputSize bounds every field framed by HashConcat and WriteFramed.
	MaxHashConcatInputSize = 100 * 1024 * 1024
)

var shake256Pool = sync.Pool{
	New: func() interface{} {
		return sha3.NewShake256()
	},
}

// SHA3256 computes the SHA3-256 hash of the input.
func SHA3256(input []byte) []byte {
	h := sha3.New256()
	h.Write(input)
	return h.Sum(nil)
}

// HashWithDomain computes a domain-separated SHA3-256 hash: the data is
// prefixed with the length of the domain string and the domain itself.
// Panics if domain is longer than 255 bytes.
func HashWithDomain(domain string, data []byte) []byte {
	h := sha3.New256()
	writeDomain(h, domain)
	h.Write(data)
	return h.Sum(nil)
}

// HashConcat computes the SHA3-256 hash of length-framed inputs.
func HashConcat(inputs ...[]byte) []byte {
	h := sha3.New256()
	WriteFramed(h, inputs...)
	return h.Sum(nil)
}

// WriteFramed writes each input to h prefixed with its length as 4 bytes,
// little-endian, so that distinct input lists never share an encoding.
// Panics if an input exceeds MaxHashConcatInputSize.
func WriteFramed(h hash.Hash, inputs ...[]byte) {
	var lenBytes [4]byte
	for _, input := range inputs {
		if len(input) > MaxHashConcatInputSize {
			panic("WriteFramed: input size exceeds maximum")
		}
		binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(input)))
		h.Write(lenBytes[:])
		h.Write(input)
	}
}

// Shake256WithDomain computes SHAKE256 with domain separation.
// Panics if domain is longer than 255 bytes.
func Shake256WithDomain(domain string, data []byte, outputLen int) []byte {
	h := shake256Pool.Get().(sha3.ShakeHash)
	defer func() {
		h.Reset()
		shake256Pool.Put(h)
	}()

	writeDomain(h, domain)
	h.Write(data)
	output := make([]byte, outputLen)
	_, _ = h.Read(output)
	return output
}

func writeDomain(w interface{ Write([]byte) (int, error) }, domain string) {
	if len(domain) > 255 {
		panic("domain string must be at most 255 bytes")
	}
	w.Write([]byte{byte(len(domain))})
	w.Write([]byte(domain))
}
