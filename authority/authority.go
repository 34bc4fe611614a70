// Package authority provides the signing capability injected into the
// receipt builder. Keys come from circl signature schemes; nothing here is
// global, so every pipeline carries its own authority.
package authority

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"

	"github.com/BackendStack21/axiom-go/utils"
)

const (
	// DefaultScheme is used when no scheme is named.
	DefaultScheme = "Ed25519"
	// HybridScheme pairs Ed448 with Dilithium3.
	HybridScheme = "Ed448-Dilithium3"

	DomainKey = "axiom-authority-key-v1"
)

var (
	// ErrUnknownScheme is returned for scheme names circl does not know.
	ErrUnknownScheme = errors.New("unknown signature scheme")
	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("bad signature")
)

// Authority signs receipt digests.
type Authority interface {
	Name() string
	Scheme() string
	PublicKey() []byte
	Sign(digest []byte) ([]byte, error)
}

// Scheme resolves a scheme name, defaulting to DefaultScheme.
func Scheme(name string) (sign.Scheme, error) {
	if name == "" {
		name = DefaultScheme
	}
	s := schemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	return s, nil
}

// Schemes lists the names of all supported schemes.
func Schemes() []string {
	all := schemes.All()
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.Name()
	}
	return out
}

type keyAuthority struct {
	name   string
	scheme sign.Scheme
	sk     sign.PrivateKey
	pub    []byte
}

func newKeyAuthority(name string, s sign.Scheme, pk sign.PublicKey, sk sign.PrivateKey) (*keyAuthority, error) {
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &keyAuthority{name: name, scheme: s, sk: sk, pub: pub}, nil
}

// New derives an authority deterministically from seed. The seed is expanded
// with SHAKE256 to the scheme seed size and must pass the entropy sanity check.
func New(scheme, name string, seed []byte) (Authority, error) {
	s, err := Scheme(scheme)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateSeedEntropy(seed); err != nil {
		return nil, err
	}
	expanded := utils.Shake256WithDomain(DomainKey, seed, s.SeedSize())
	defer utils.Zeroize(expanded)
	pk, sk := s.DeriveKey(expanded)
	return newKeyAuthority(name, s, pk, sk)
}

// Generate creates an authority with a fresh random key.
func Generate(scheme, name string) (Authority, error) {
	s, err := Scheme(scheme)
	if err != nil {
		return nil, err
	}
	seed, err := utils.SecureRandomBytes(s.SeedSize())
	if err != nil {
		return nil, err
	}
	defer utils.Zeroize(seed)
	pk, sk := s.DeriveKey(seed)
	return newKeyAuthority(name, s, pk, sk)
}

func (a *keyAuthority) Name() string      { return a.name }
func (a *keyAuthority) Scheme() string    { return a.scheme.Name() }
func (a *keyAuthority) PublicKey() []byte { return append([]byte(nil), a.pub...) }

func (a *keyAuthority) Sign(digest []byte) ([]byte, error) {
	if len(digest) == 0 {
		return nil, errors.New("empty digest")
	}
	return a.scheme.Sign(a.sk, digest, nil), nil
}

// Verify checks sig over msg under the encoded public key.
func Verify(scheme string, publicKey, msg, sig []byte) error {
	s, err := Scheme(scheme)
	if err != nil {
		return err
	}
	pk, err := s.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !s.Verify(pk, msg, sig, nil) {
		return ErrBadSignature
	}
	return nil
}
