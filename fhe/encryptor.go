package fhe

import (
	"encoding/binary"
	"fmt"
	"io"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/problems/lwe"
	"github.com/BackendStack21/axiom-go/utils"
)

// Encryptor encrypts plaintexts under one public key. It holds no mutable
// state and is safe for concurrent use.
type Encryptor struct {
	pk       *axiom.PublicKey
	mode     axiom.Mode
	seed     []byte
	pkDigest []byte
}

// NewEncryptor binds an encryptor to pk. Frozen mode requires a seed, from
// which all encryption randomness is derived; secure mode requires nil.
func NewEncryptor(pk *axiom.PublicKey, mode axiom.Mode, seed []byte) (*Encryptor, error) {
	if pk == nil {
		return nil, fmt.Errorf("%w: nil public key", axiom.ErrInvalidParameters)
	}
	if err := checkSeed(mode, seed); err != nil {
		return nil, err
	}
	return &Encryptor{
		pk:       pk,
		mode:     mode,
		seed:     append([]byte(nil), seed...),
		pkDigest: PublicKeyDigest(pk),
	}, nil
}

// Mode returns the randomness mode of the encryptor.
func (e *Encryptor) Mode() axiom.Mode { return e.mode }

// Params returns the parameters of the bound public key.
func (e *Encryptor) Params() axiom.Parameters { return e.pk.Params }

// Encrypt encrypts m, which must be below the plaintext modulus. In frozen
// mode equal plaintexts encrypt to equal ciphertexts; use EncryptWithNonce to
// tell repeated encryptions apart.
func (e *Encryptor) Encrypt(m uint32) (*axiom.Ciphertext, error) {
	return e.EncryptWithNonce(m, nil)
}

// EncryptWithNonce is Encrypt with a caller chosen nonce mixed into the
// frozen stream. The nonce is ignored in secure mode.
func (e *Encryptor) EncryptWithNonce(m uint32, nonce []byte) (*axiom.Ciphertext, error) {
	if uint64(m) >= e.pk.Params.T {
		return nil, fmt.Errorf("%w: %d >= %d", axiom.ErrPlaintextOutOfRange, m, e.pk.Params.T)
	}

	var rnd io.Reader
	switch e.mode {
	case axiom.ModeFrozen:
		var mb [4]byte
		binary.LittleEndian.PutUint32(mb[:], m)
		stream, err := utils.NewFrozenStream(DomainEncrypt, e.seed, e.pkDigest, nonce, mb[:])
		if err != nil {
			return nil, err
		}
		rnd = stream
	case axiom.ModeSecure:
		rnd = utils.NewSecureStream()
	default:
		return nil, axiom.ErrInvalidMode
	}
	return lwe.Encrypt(e.pk, uint64(m), rnd)
}
