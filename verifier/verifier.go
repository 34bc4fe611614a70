// Package verifier implements the determinism verifier: it evaluates one
// policy run N times and reports how many distinct outcome digests appeared.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"cosmossdk.io/log"
	"golang.org/x/sync/errgroup"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/metrics"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/receipt"
)

// Digest domains owned by the verifier.
const (
	DomainRejected    = "axiom-rejected-v1"
	DomainProof       = "axiom-proof-v1"
	DomainAttestation = "axiom-attestation-v1"
)

// MaxIterations bounds the iteration count of one verification. Outcomes are
// held in memory until the run completes.
const MaxIterations = 1 << 16

// reasonProcedureFailed stands in for the constraint name when the procedure
// itself failed.
const reasonProcedureFailed = "procedure_failed"

// Source resolves the procedure revision evaluated by one iteration.
// *policy.Registry implements it.
type Source interface {
	Resolve(id, version string, iteration uint32) (*policy.Procedure, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(id, version string, iteration uint32) (*policy.Procedure, error)

// Resolve calls f.
func (f SourceFunc) Resolve(id, version string, iteration uint32) (*policy.Procedure, error) {
	return f(id, version, iteration)
}

// Verifier runs determinism checks. It is safe for concurrent use.
type Verifier struct {
	executor *policy.Executor
	hash     receipt.Hash
	workers  int
	analytic bool
	logger   log.Logger
	metrics  *metrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWorkers bounds the number of iterations evaluated at once.
func WithWorkers(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.workers = n
		}
	}
}

// WithAnalytic lets the verifier evaluate a pure procedure once and replicate
// its digest, provided every iteration resolves to the same registration.
func WithAnalytic(enabled bool) Option {
	return func(v *Verifier) { v.analytic = enabled }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithMetrics sets the metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New returns a verifier that evaluates runs with ex and digests them with h.
func New(ex *policy.Executor, h receipt.Hash, opts ...Option) *Verifier {
	if ex == nil {
		ex = policy.NewExecutor()
	}
	if h.New == nil {
		h = receipt.DefaultHash()
	}
	v := &Verifier{
		executor: ex,
		hash:     h,
		workers:  runtime.GOMAXPROCS(0),
		logger:   log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// outcome is the result of one iteration.
type outcome struct {
	digest   axiom.Digest
	accepted bool
	err      error
}

// Verify evaluates (id, version, cs, input) n times. Iterations are
// independent and run in parallel; each resolves its procedure from src.
//
// The result is returned whenever all n iterations completed. On divergence
// the error wraps axiom.ErrDigestMismatch. When every iteration was rejected
// the same way, the error is the rejection itself. A cancelled context stops
// new iterations from starting and no result is returned.
func (v *Verifier) Verify(ctx context.Context, src Source, id, version string, cs *policy.ConstraintSet, input policy.Value, n uint32) (*axiom.VerificationResult, error) {
	if src == nil || id == "" || version == "" || cs == nil || cs.Len() == 0 {
		return nil, fmt.Errorf("%w: verification needs a procedure, constraints and input", axiom.ErrIncompleteSpecification)
	}
	if err := policy.Validate(input); err != nil {
		return nil, fmt.Errorf("%w: %w", axiom.ErrIncompleteSpecification, err)
	}
	if n == 0 || n > MaxIterations {
		return nil, fmt.Errorf("%w: iterations must be in [1, %d], got %d", axiom.ErrIncompleteSpecification, MaxIterations, n)
	}

	start := time.Now()
	var (
		outcomes []outcome
		err      error
	)
	if proc, ok := v.analyticProcedure(src, id, version, n); ok {
		outcomes, err = v.replicate(ctx, proc, cs, input, n)
	} else {
		outcomes, err = v.runAll(ctx, src, id, version, cs, input, n)
	}
	if err != nil {
		return nil, err
	}

	res := aggregate(v.hash, outcomes)
	v.metrics.Verification(res.Insurable(), res.EntropyCount, res.RiskScore)
	v.logger.Info("determinism verification finished",
		"procedure", id+"@"+version,
		"iterations", res.IterationsRun,
		"entropy", res.EntropyCount,
		"risk", res.RiskScore,
		"elapsed", time.Since(start),
	)

	switch {
	case res.EntropyCount > 1:
		return res, fmt.Errorf("%w: %d distinct digests over %d iterations", axiom.ErrDigestMismatch, res.EntropyCount, res.IterationsRun)
	case res.Consensus == nil:
		return res, outcomes[0].err
	}
	return res, nil
}

// analyticProcedure returns the procedure to evaluate once, if the analytic
// path applies.
func (v *Verifier) analyticProcedure(src Source, id, version string, n uint32) (*policy.Procedure, bool) {
	if !v.analytic {
		return nil, false
	}
	first, err := src.Resolve(id, version, 0)
	if err != nil || first == nil || !first.Pure {
		return nil, false
	}
	for i := uint32(1); i < n; i++ {
		p, err := src.Resolve(id, version, i)
		if err != nil || p != first {
			return nil, false
		}
	}
	return first, true
}

func (v *Verifier) replicate(ctx context.Context, proc *policy.Procedure, cs *policy.ConstraintSet, input policy.Value, n uint32) ([]outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := v.evaluate(proc, cs, input)
	if err != nil {
		return nil, err
	}
	outcomes := make([]outcome, n)
	for i := range outcomes {
		outcomes[i] = o
	}
	return outcomes, nil
}

func (v *Verifier) runAll(ctx context.Context, src Source, id, version string, cs *policy.ConstraintSet, input policy.Value, n uint32) ([]outcome, error) {
	outcomes := make([]outcome, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := uint32(0); i < n; i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			proc, err := src.Resolve(id, version, i)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
			o, err := v.evaluate(proc, cs, input)
			if err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// evaluate runs one iteration. Rejections are outcomes, not errors; an error
// means the iteration could not be evaluated at all.
func (v *Verifier) evaluate(proc *policy.Procedure, cs *policy.ConstraintSet, input policy.Value) (o outcome, err error) {
	// Iterations run on errgroup goroutines, where a panic cannot be
	// recovered by the caller.
	defer func() {
		if rec := recover(); rec != nil {
			o, err = outcome{}, fmt.Errorf("%w: digesting %s: %v", axiom.ErrProcedureFailed, proc.Ref(), rec)
		}
	}()
	exec, err := v.executor.Execute(proc, cs, input)
	if exec == nil {
		return outcome{}, err
	}
	if exec.Accepted() {
		d := receipt.ComputeDigests(v.hash, cs, input, exec.Output)
		return outcome{digest: receipt.Combine(v.hash, proc.ID, proc.Version, d), accepted: true}, nil
	}
	reason := exec.Violated
	if reason == "" {
		reason = reasonProcedureFailed
	}
	return outcome{
		digest: v.hash.Sum(DomainRejected, []byte(proc.ID), []byte(proc.Version), []byte(reason)),
		err:    err,
	}, nil
}

// aggregate reduces per-iteration outcomes to a result. The consensus is the
// most frequent accepted digest, the earliest one on ties.
func aggregate(h receipt.Hash, outcomes []outcome) *axiom.VerificationResult {
	res := &axiom.VerificationResult{
		IterationsRun: uint32(len(outcomes)),
		Digests:       make([]axiom.Digest, len(outcomes)),
	}
	counts := make(map[string]uint32)
	var order []string
	accepted := make(map[string]bool)
	for i, o := range outcomes {
		res.Digests[i] = o.digest
		k := string(o.digest)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
		if o.accepted {
			accepted[k] = true
		} else {
			res.Rejections++
		}
	}
	res.EntropyCount = uint32(len(order))

	var best string
	for _, k := range order {
		if accepted[k] && counts[k] > res.MatchingDigestCount {
			best = k
			res.MatchingDigestCount = counts[k]
		}
	}
	if res.MatchingDigestCount > 0 {
		res.Consensus = axiom.Digest(best)
	}
	res.RiskScore = RiskScore(res.IterationsRun, res.MatchingDigestCount)

	fields := make([][]byte, len(res.Digests))
	for i, d := range res.Digests {
		fields[i] = d
	}
	res.Proof = h.Sum(DomainProof, fields...)
	if res.Insurable() {
		res.Attestation = Attest(h, res.Proof, res.Consensus)
	}
	return res
}

// Attest derives the attestation issued for an insurable result.
func Attest(h receipt.Hash, proof, consensus axiom.Digest) axiom.Digest {
	return h.Sum(DomainAttestation, proof, consensus)
}

// RiskScore is the percentage of iterations that did not reproduce the
// consensus digest, rounded up. It is zero iff matching == iterations.
func RiskScore(iterations, matching uint32) uint32 {
	if iterations == 0 || matching > iterations {
		return 100
	}
	miss := uint64(iterations - matching)
	return uint32((100*miss + uint64(iterations) - 1) / uint64(iterations))
}

// IsDivergence reports whether err signals nondeterminism.
func IsDivergence(err error) bool {
	return errors.Is(err, axiom.ErrDigestMismatch)
}
