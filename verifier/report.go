package verifier

import (
	"fmt"
	"strings"

	axiom "github.com/BackendStack21/axiom-go"
)

// Status labels used in reports.
const (
	StatusInsurable   = "INSURABLE"
	StatusUninsurable = "UNINSURABLE"
)

// Status returns the report label for a result.
func Status(r *axiom.VerificationResult) string {
	if r != nil && r.Insurable() {
		return StatusInsurable
	}
	return StatusUninsurable
}

// Report renders a result as a boot-log style summary.
func Report(r *axiom.VerificationResult) string {
	if r == nil {
		return "Risk Score: n/a (" + StatusUninsurable + ")\n"
	}
	consensus, attestation := "none", "none"
	if r.Consensus != nil {
		consensus = r.Consensus.String()
	}
	if r.Attestation != nil {
		attestation = r.Attestation.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Risk Score: %d (%s)\n", r.RiskScore, Status(r))
	fmt.Fprintf(&b, "Consensus Digest: %s\n", consensus)
	fmt.Fprintf(&b, "Iteration Count: %d\n", r.IterationsRun)
	fmt.Fprintf(&b, "Matching Digests: %d\n", r.MatchingDigestCount)
	fmt.Fprintf(&b, "Entropy Count: %d\n", r.EntropyCount)
	fmt.Fprintf(&b, "Rejections: %d\n", r.Rejections)
	fmt.Fprintf(&b, "All Digests Match: %t\n", r.EntropyCount == 1)
	b.WriteString("Temperature: 0\n")
	fmt.Fprintf(&b, "Proof: %s\n", r.Proof)
	fmt.Fprintf(&b, "Attestation: %s\n", attestation)
	return b.String()
}
