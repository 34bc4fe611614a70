// Package axiom implements a deterministic verification pipeline built on a
// Learning-With-Errors (LWE) additively homomorphic cipher and hash-bound
// execution receipts.
//
// WARNING: The parameter sets shipped with this package target reproducibility
// and noise accounting, they have NOT been reviewed against current lattice
// estimators. DO NOT use them to protect sensitive data.
package axiom

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// =============================================================================
// Parameter Types
// =============================================================================

// Parameters is the fixed numeric configuration of the LWE cipher.
// Values are immutable once validated and may be shared freely.
type Parameters struct {
	Name       string `json:"name"`
	Q          uint64 `json:"q"`           // Ciphertext modulus
	T          uint64 `json:"t"`           // Plaintext modulus, divides Q
	N          int    `json:"n"`           // Lattice dimension
	M          int    `json:"m"`           // Public key samples
	ErrorBound uint64 `json:"error_bound"` // Fresh noise is uniform in [-ErrorBound, ErrorBound]
	NoiseBound uint64 `json:"noise_bound"` // B: largest |e| tolerated at decryption
}

// Delta returns the plaintext scaling factor Q/T.
func (p Parameters) Delta() uint64 {
	if p.T == 0 {
		return 0
	}
	return p.Q / p.T
}

// Mode selects the randomness discipline of key generation and encryption.
// There is no usable zero value: callers must always pick one explicitly.
type Mode uint8

const (
	// ModeUnspecified is rejected by every operation.
	ModeUnspecified Mode = iota
	// ModeFrozen derives all randomness from a caller supplied seed so that
	// runs can be replayed bit for bit.
	ModeFrozen
	// ModeSecure draws randomness from the operating system CSPRNG.
	ModeSecure
)

// String returns the canonical name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFrozen:
		return "frozen"
	case ModeSecure:
		return "secure"
	default:
		return "unspecified"
	}
}

// ParseMode parses a mode name as produced by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frozen", "replay", "verification":
		return ModeFrozen, nil
	case "secure", "production":
		return ModeSecure, nil
	default:
		return ModeUnspecified, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// SeedFromUint64 encodes an integer seed as 8 big-endian bytes.
func SeedFromUint64(v uint64) []byte {
	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, v)
	return seed
}

// =============================================================================
// Key Types
// =============================================================================

// PublicKey is an LWE public key: M samples (A_i, B_i = <A_i, s> + e_i).
// A is expanded from Seed and is never serialized.
type PublicKey struct {
	Seed   []byte     // 32-byte matrix seed
	A      []uint64   // M x N matrix (flattened, row-major)
	B      []uint64   // M-vector
	Params Parameters // Parameters the key was generated for
}

// SecretKey is a ternary secret vector s in {-1, 0, 1}^N.
type SecretKey struct {
	S      []int8
	Params Parameters
}

// Zeroize overwrites the secret vector.
func (sk *SecretKey) Zeroize() {
	for i := range sk.S {
		sk.S[i] = 0
	}
}

// String never prints secret material.
func (sk *SecretKey) String() string {
	return fmt.Sprintf("SecretKey{%s, n=%d}", sk.Params.Name, len(sk.S))
}

// KeyPair contains both public and secret keys.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// =============================================================================
// Ciphertext
// =============================================================================

// Ciphertext is an LWE sample (a, b) with b = <a, s> + e + Delta*m mod Q.
// Noise is a worst-case bound on |e| maintained by the evaluator.
// Ciphertexts are never modified in place.
type Ciphertext struct {
	A     []uint64 `json:"a"`
	B     uint64   `json:"b"`
	Noise uint64   `json:"noise"`
}

// =============================================================================
// Receipt Types
// =============================================================================

// Digest is a hash output rendered as lowercase hex in text encodings.
type Digest []byte

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid digest: %w", err)
	}
	*d = b
	return nil
}

// ReceiptBundle binds a procedure revision, its constraint set, an input and
// the accepted output together.
//
// CombinedDigest = H(procedure_id || version || constraint_set_digest ||
// input_digest || output_digest), framed as documented in package receipt.
type ReceiptBundle struct {
	ProcedureID         string `json:"procedure_id"`
	ProcedureVersion    string `json:"procedure_version"`
	ConstraintSetDigest Digest `json:"constraint_set_digest"`
	InputDigest         Digest `json:"input_digest"`
	OutputDigest        Digest `json:"output_digest"`
	CombinedDigest      Digest `json:"combined_digest"`
	Signature           []byte `json:"signature,omitempty"`
	Hash                string `json:"hash"`                // Hash function name
	Scheme              string `json:"scheme,omitempty"`    // Signature scheme
	Authority           string `json:"authority,omitempty"` // Signing authority name
}

// =============================================================================
// Verification Types
// =============================================================================

// VerificationResult summarizes N repeated evaluations of one policy run.
// RiskScore is zero iff MatchingDigestCount == IterationsRun.
//
// Proof commits to every iteration digest in order. Attestation binds the
// proof to the consensus and is only present on insurable results.
type VerificationResult struct {
	IterationsRun       uint32   `json:"iterations_run"`
	MatchingDigestCount uint32   `json:"matching_digest_count"`
	EntropyCount        uint32   `json:"entropy_count"`
	RiskScore           uint32   `json:"risk_score"`
	Rejections          uint32   `json:"rejections"`
	Consensus           Digest   `json:"consensus,omitempty"`
	Digests             []Digest `json:"digests"`
	Proof               Digest   `json:"proof"`
	Attestation         Digest   `json:"attestation,omitempty"`
}

// Insurable reports whether every run collapsed to one accepted digest.
func (r *VerificationResult) Insurable() bool {
	return r.RiskScore == 0 && r.EntropyCount == 1 && r.IterationsRun > 0
}
