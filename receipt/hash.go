package receipt

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/BackendStack21/axiom-go/utils"
)

// Names of the supported digest functions.
const (
	SHA3_256   = "sha3-256"
	BLAKE3_256 = "blake3-256"
	SHA256     = "sha256"
)

// Hash is a named 256-bit digest function.
type Hash struct {
	Name string
	New  func() hash.Hash
}

var hashes = map[string]Hash{
	SHA3_256:   {Name: SHA3_256, New: sha3.New256},
	BLAKE3_256: {Name: BLAKE3_256, New: func() hash.Hash { return blake3.New() }},
	SHA256:     {Name: SHA256, New: sha256.New},
}

// DefaultHash returns SHA3-256.
func DefaultHash() Hash {
	return hashes[SHA3_256]
}

// HashByName looks up a digest function. The empty name selects the default.
func HashByName(name string) (Hash, error) {
	if name == "" {
		return DefaultHash(), nil
	}
	h, ok := hashes[name]
	if !ok {
		return Hash{}, fmt.Errorf("unknown hash %q", name)
	}
	return h, nil
}

// HashNames lists the supported digest functions.
func HashNames() []string {
	out := make([]string, 0, len(hashes))
	for k := range hashes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sum frames the domain and every field with a 4-byte little-endian length
// and hashes the result.
func (h Hash) Sum(domain string, fields ...[]byte) []byte {
	d := h.New()
	utils.WriteFramed(d, []byte(domain))
	utils.WriteFramed(d, fields...)
	return d.Sum(nil)
}
