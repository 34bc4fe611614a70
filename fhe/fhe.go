// Package fhe implements the axiom cipher engine: key generation in frozen or
// secure mode, encryption of uint32 plaintexts, noise-checked decryption and
// additively homomorphic evaluation.
package fhe

import (
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/problems/lwe"
	"github.com/BackendStack21/axiom-go/utils"
)

const (
	DomainKeySeed   = "axiom-fhe-keyseed-v1"
	DomainEncrypt   = "axiom-fhe-encrypt-v1"
	DomainPublicKey = "axiom-fhe-pk-v1"
)

// SecureSeedSize is the size of the seed drawn in secure mode.
const SecureSeedSize = 32

// checkSeed enforces the seed contract of each mode. Frozen mode needs a
// caller supplied seed; secure mode refuses one so that a fixed seed can
// never leak into production keys.
func checkSeed(mode axiom.Mode, seed []byte) error {
	switch mode {
	case axiom.ModeFrozen:
		if len(seed) == 0 {
			return fmt.Errorf("%w: frozen mode requires a seed", axiom.ErrInvalidSeed)
		}
	case axiom.ModeSecure:
		if seed != nil {
			return fmt.Errorf("%w: secure mode does not accept a seed", axiom.ErrInvalidSeed)
		}
	default:
		return axiom.ErrInvalidMode
	}
	return nil
}

// GenerateKeys derives a key pair. In frozen mode the result depends only on
// params and seed. In secure mode seed must be nil and a fresh seed is drawn
// from the operating system and erased afterwards.
func GenerateKeys(params axiom.Parameters, seed []byte, mode axiom.Mode) (*axiom.KeyPair, error) {
	if err := checkSeed(mode, seed); err != nil {
		return nil, err
	}
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}

	if mode == axiom.ModeSecure {
		fresh, err := utils.SecureRandomBytes(SecureSeedSize)
		if err != nil {
			return nil, err
		}
		defer utils.Zeroize(fresh)
		seed = fresh
	}

	keySeed := utils.HashWithDomain(DomainKeySeed, seed)
	defer utils.Zeroize(keySeed)
	return lwe.KeyGen(params, keySeed)
}

// PublicKeyDigest identifies a public key.
func PublicKeyDigest(pk *axiom.PublicKey) []byte {
	return utils.HashWithDomain(DomainPublicKey, lwe.SerializePublicKey(pk))
}

// Decrypt recovers the plaintext of ct. It fails with
// axiom.ErrDecryptionNoiseOverflow when either the tracked noise bound or the
// noise implied by the phase exceeds the parameter noise bound, since the
// rounded plaintext can no longer be trusted.
func Decrypt(sk *axiom.SecretKey, ct *axiom.Ciphertext) (uint32, error) {
	if sk == nil || ct == nil {
		return 0, axiom.ErrInvalidCiphertext
	}
	p := sk.Params
	if ct.Noise > p.NoiseBound {
		return 0, fmt.Errorf("%w: tracked noise %d exceeds %d", axiom.ErrDecryptionNoiseOverflow, ct.Noise, p.NoiseBound)
	}
	phase, err := lwe.Phase(sk, ct)
	if err != nil {
		return 0, err
	}
	m, noise := lwe.Decode(p, phase)
	if utils.Abs(noise) > p.NoiseBound {
		return 0, fmt.Errorf("%w: implied noise exceeds %d", axiom.ErrDecryptionNoiseOverflow, p.NoiseBound)
	}
	return uint32(m), nil
}
