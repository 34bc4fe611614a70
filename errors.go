package axiom

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every package. Nothing in this module retries on
// any of these; they are returned to the caller as values.
var (
	// ErrInvalidParameters rejects a lattice configuration at construction time.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInvalidMode is returned when no randomness mode was selected.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidSeed is returned for a seed that does not fit the mode.
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrPlaintextOutOfRange is returned by encryption for m >= T.
	ErrPlaintextOutOfRange = errors.New("plaintext out of range")
	// ErrDecryptionNoiseOverflow signals that accumulated noise exceeds the bound.
	ErrDecryptionNoiseOverflow = errors.New("decryption noise overflow")
	// ErrNoiseBudgetExceeded rejects a homomorphic operation before it runs.
	ErrNoiseBudgetExceeded = errors.New("noise budget exceeded")
	// ErrIncompatibleCiphertexts is returned when operands do not share parameters.
	ErrIncompatibleCiphertexts = errors.New("incompatible ciphertexts")
	// ErrInvalidCiphertext is returned for malformed ciphertexts.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrIncompleteSpecification is returned when a procedure or its constraint set is missing.
	ErrIncompleteSpecification = errors.New("incomplete specification")
	// ErrProcedureFailed wraps an error or panic raised inside a procedure.
	ErrProcedureFailed = errors.New("procedure failed")
	// ErrDigestMismatch is returned by the determinism verifier on divergence.
	ErrDigestMismatch = errors.New("digest mismatch")
)

// ConstraintViolatedError reports the first constraint that evaluated false.
// The name is diagnostic only and never carries a partial result.
type ConstraintViolatedError struct {
	Name string
}

func (e *ConstraintViolatedError) Error() string {
	return fmt.Sprintf("constraint violated: %s", e.Name)
}

// ViolatedConstraint returns the failing constraint name carried by err, if any.
func ViolatedConstraint(err error) (string, bool) {
	var cv *ConstraintViolatedError
	if errors.As(err, &cv) {
		return cv.Name, true
	}
	return "", false
}
