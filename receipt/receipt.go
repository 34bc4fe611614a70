// Package receipt binds accepted policy runs into signed, independently
// verifiable receipts.
//
// Digest layout, with frame(x) = len(x) as 4 bytes little-endian || x:
//
//	constraint_set_digest = H(frame("axiom-constraints-v1") || frame(canonical(constraints)))
//	input_digest          = H(frame("axiom-input-v1")       || frame(canonical(input)))
//	output_digest         = H(frame("axiom-output-v1")      || frame(canonical(output)))
//	combined_digest       = H(frame("axiom-receipt-v1") || frame(procedure_id) ||
//	                          frame(procedure_version) || frame(constraint_set_digest) ||
//	                          frame(input_digest) || frame(output_digest))
//
// The signature covers combined_digest only.
package receipt

import (
	"errors"
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/metrics"
	"github.com/BackendStack21/axiom-go/utils"
)

const (
	DomainConstraints = "axiom-constraints-v1"
	DomainInput       = "axiom-input-v1"
	DomainOutput      = "axiom-output-v1"
	DomainReceipt     = "axiom-receipt-v1"
)

var (
	// ErrReceiptTampered is returned when disclosed fields do not reproduce
	// the committed digests.
	ErrReceiptTampered = errors.New("receipt tampered")
	// ErrBadSignature is returned when the authority signature does not verify.
	ErrBadSignature = authority.ErrBadSignature
	// ErrUnsigned is returned by Verify for a receipt without a signature.
	ErrUnsigned = errors.New("receipt is not signed")
)

// Canonical is anything with a canonical byte encoding, such as policy
// values and constraint sets.
type Canonical interface {
	AppendCanonical(dst []byte) []byte
}

// Digests are the component digests of a receipt.
type Digests struct {
	ConstraintSet []byte
	Input         []byte
	Output        []byte
}

// ComputeDigests hashes the canonical encodings of a constraint set, an
// input and an output.
func ComputeDigests(h Hash, cs, input, output Canonical) Digests {
	return Digests{
		ConstraintSet: h.Sum(DomainConstraints, cs.AppendCanonical(nil)),
		Input:         h.Sum(DomainInput, input.AppendCanonical(nil)),
		Output:        h.Sum(DomainOutput, output.AppendCanonical(nil)),
	}
}

// Combine computes the combined digest in the documented field order.
func Combine(h Hash, id, version string, d Digests) []byte {
	return h.Sum(DomainReceipt, []byte(id), []byte(version), d.ConstraintSet, d.Input, d.Output)
}

// Builder assembles receipts. It is pure apart from the signature and safe
// for concurrent use.
type Builder struct {
	hash      Hash
	authority authority.Authority
	metrics   *metrics.Metrics
}

// NewBuilder returns a builder. A nil authority produces unsigned receipts.
func NewBuilder(h Hash, a authority.Authority) *Builder {
	if h.New == nil {
		h = DefaultHash()
	}
	return &Builder{hash: h, authority: a}
}

// WithMetrics returns a copy of the builder that counts issued receipts.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	c := *b
	c.metrics = m
	return &c
}

// Hash returns the builder's digest function.
func (b *Builder) Hash() Hash { return b.hash }

// Build binds (id, version, constraints, input, output) into a receipt.
func (b *Builder) Build(id, version string, cs, input, output Canonical) (*axiom.ReceiptBundle, error) {
	if id == "" || version == "" || cs == nil || input == nil || output == nil {
		return nil, axiom.ErrIncompleteSpecification
	}
	d := ComputeDigests(b.hash, cs, input, output)
	bundle := &axiom.ReceiptBundle{
		ProcedureID:         id,
		ProcedureVersion:    version,
		ConstraintSetDigest: d.ConstraintSet,
		InputDigest:         d.Input,
		OutputDigest:        d.Output,
		CombinedDigest:      Combine(b.hash, id, version, d),
		Hash:                b.hash.Name,
	}
	if b.authority != nil {
		sig, err := b.authority.Sign(bundle.CombinedDigest)
		if err != nil {
			return nil, fmt.Errorf("signing receipt: %w", err)
		}
		bundle.Signature = sig
		bundle.Scheme = b.authority.Scheme()
		bundle.Authority = b.authority.Name()
	}
	b.metrics.ReceiptIssued()
	return bundle, nil
}

// Verify recomputes the combined digest from the disclosed fields and checks
// the signature against publicKey. No secret material is needed. scheme may
// be empty, in which case the bundle's scheme is used.
func Verify(bundle *axiom.ReceiptBundle, scheme string, publicKey []byte) error {
	if err := CheckCombined(bundle); err != nil {
		return err
	}
	if len(bundle.Signature) == 0 {
		return ErrUnsigned
	}
	if scheme == "" {
		scheme = bundle.Scheme
	}
	if bundle.Scheme != "" && bundle.Scheme != scheme {
		return fmt.Errorf("%w: scheme %q, expected %q", ErrBadSignature, bundle.Scheme, scheme)
	}
	return authority.Verify(scheme, publicKey, bundle.CombinedDigest, bundle.Signature)
}

// CheckCombined recomputes the combined digest from the disclosed fields.
func CheckCombined(bundle *axiom.ReceiptBundle) error {
	if bundle == nil {
		return ErrReceiptTampered
	}
	h, err := HashByName(bundle.Hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceiptTampered, err)
	}
	d := Digests{ConstraintSet: bundle.ConstraintSetDigest, Input: bundle.InputDigest, Output: bundle.OutputDigest}
	if !utils.ConstantTimeEqual(Combine(h, bundle.ProcedureID, bundle.ProcedureVersion, d), bundle.CombinedDigest) {
		return fmt.Errorf("%w: combined digest mismatch", ErrReceiptTampered)
	}
	return nil
}

// VerifyDisclosure is Verify plus a check that the disclosed constraint set,
// input and output reproduce the component digests.
func VerifyDisclosure(bundle *axiom.ReceiptBundle, scheme string, publicKey []byte, cs, input, output Canonical) error {
	if err := Verify(bundle, scheme, publicKey); err != nil {
		return err
	}
	return CheckDisclosure(bundle, cs, input, output)
}

// CheckDisclosure compares disclosed values against the component digests
// without checking the signature.
func CheckDisclosure(bundle *axiom.ReceiptBundle, cs, input, output Canonical) error {
	if bundle == nil {
		return ErrReceiptTampered
	}
	h, err := HashByName(bundle.Hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceiptTampered, err)
	}
	d := ComputeDigests(h, cs, input, output)
	switch {
	case !utils.ConstantTimeEqual(d.ConstraintSet, bundle.ConstraintSetDigest):
		return fmt.Errorf("%w: constraint set digest mismatch", ErrReceiptTampered)
	case !utils.ConstantTimeEqual(d.Input, bundle.InputDigest):
		return fmt.Errorf("%w: input digest mismatch", ErrReceiptTampered)
	case !utils.ConstantTimeEqual(d.Output, bundle.OutputDigest):
		return fmt.Errorf("%w: output digest mismatch", ErrReceiptTampered)
	}
	return nil
}
