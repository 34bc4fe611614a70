// Package pipeline is the boundary facade over the cipher engine, the policy
// executor, the receipt builder and the determinism verifier.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"cosmossdk.io/log"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/fhe"
	"github.com/BackendStack21/axiom-go/metrics"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/receipt"
	"github.com/BackendStack21/axiom-go/store"
	"github.com/BackendStack21/axiom-go/verifier"
)

// ErrNoKeys is returned by cipher operations before keys were generated.
var ErrNoKeys = errors.New("no key pair installed")

// keyState is one immutable key generation. Rotation replaces the pointer,
// never the value.
type keyState struct {
	pair       *axiom.KeyPair
	encryptor  *fhe.Encryptor
	generation uint64
}

// Core wires the pipeline components together. Every method is safe for
// concurrent use.
type Core struct {
	params    axiom.Parameters
	mode      axiom.Mode
	keys      atomic.Pointer[keyState]
	evaluator *fhe.Evaluator
	registry  *policy.Registry
	executor  *policy.Executor
	builder   *receipt.Builder
	verifier  *verifier.Verifier
	chain     *receipt.Chain
	store     store.Store

	hash         receipt.Hash
	authority    authority.Authority
	verifierOpts []verifier.Option
	logger       log.Logger
	metrics      *metrics.Metrics
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger of every component.
func WithLogger(l log.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// WithMetrics sets the metrics of every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Core) { c.metrics = m }
}

// WithStore persists every issued receipt.
func WithStore(s store.Store) Option {
	return func(c *Core) { c.store = s }
}

// WithAuthority signs receipts. Without one receipts are unsigned.
func WithAuthority(a authority.Authority) Option {
	return func(c *Core) { c.authority = a }
}

// WithHash selects the receipt digest function.
func WithHash(h receipt.Hash) Option {
	return func(c *Core) { c.hash = h }
}

// WithRegistry uses reg instead of an empty registry.
func WithRegistry(reg *policy.Registry) Option {
	return func(c *Core) { c.registry = reg }
}

// WithVerifierOptions configures the determinism verifier.
func WithVerifierOptions(opts ...verifier.Option) Option {
	return func(c *Core) { c.verifierOpts = append(c.verifierOpts, opts...) }
}

// New validates params and assembles a pipeline. Keys are generated
// separately with GenerateKeys.
func New(params axiom.Parameters, mode axiom.Mode, opts ...Option) (*Core, error) {
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}
	if mode != axiom.ModeFrozen && mode != axiom.ModeSecure {
		return nil, axiom.ErrInvalidMode
	}
	c := &Core{
		params: params,
		mode:   mode,
		hash:   receipt.DefaultHash(),
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	ev, err := fhe.NewEvaluator(params)
	if err != nil {
		return nil, err
	}
	c.evaluator = ev
	if c.registry == nil {
		if c.registry, err = policy.NewRegistry(); err != nil {
			return nil, err
		}
	}
	c.executor = policy.NewExecutor(
		policy.WithLogger(c.logger),
		policy.WithMetrics(c.metrics),
		policy.WithEvaluator(ev),
	)
	c.builder = receipt.NewBuilder(c.hash, c.authority).WithMetrics(c.metrics)
	c.verifier = verifier.New(c.executor, c.hash, append([]verifier.Option{
		verifier.WithLogger(c.logger),
		verifier.WithMetrics(c.metrics),
	}, c.verifierOpts...)...)
	c.chain = receipt.NewChain(c.hash)
	return c, nil
}

// Params returns the lattice parameters.
func (c *Core) Params() axiom.Parameters { return c.params }

// Mode returns the randomness mode.
func (c *Core) Mode() axiom.Mode { return c.mode }

// Registry returns the procedure registry.
func (c *Core) Registry() *policy.Registry { return c.registry }

// Evaluator returns the homomorphic evaluator.
func (c *Core) Evaluator() *fhe.Evaluator { return c.evaluator }

// Chain returns the receipt chain of this pipeline.
func (c *Core) Chain() *receipt.Chain { return c.chain }

// GenerateKeys generates and installs a key pair. Frozen mode requires seed,
// secure mode requires nil.
func (c *Core) GenerateKeys(seed []byte) (*axiom.KeyPair, error) {
	_, next, err := c.install(seed)
	if err != nil {
		return nil, err
	}
	return next.pair, nil
}

// RotateKeys installs a new key pair and returns the one it replaced, if any.
// Ciphertexts under the previous key must be decrypted with it.
func (c *Core) RotateKeys(seed []byte) (previous *axiom.KeyPair, err error) {
	prev, _, err := c.install(seed)
	if err != nil || prev == nil {
		return nil, err
	}
	return prev.pair, nil
}

func (c *Core) install(seed []byte) (prev, next *keyState, err error) {
	kp, err := fhe.GenerateKeys(c.params, seed, c.mode)
	if err != nil {
		c.metrics.CipherFailure("keygen", reason(err))
		return nil, nil, err
	}
	var encSeed []byte
	if c.mode == axiom.ModeFrozen {
		encSeed = seed
	}
	enc, err := fhe.NewEncryptor(&kp.PublicKey, c.mode, encSeed)
	if err != nil {
		return nil, nil, err
	}
	for {
		prev = c.keys.Load()
		next = &keyState{pair: kp, encryptor: enc, generation: 1}
		if prev != nil {
			next.generation = prev.generation + 1
		}
		if c.keys.CompareAndSwap(prev, next) {
			break
		}
	}
	c.metrics.CipherOp("keygen", 0)
	c.logger.Info("key pair installed", "params", c.params.Name, "mode", c.mode.String(), "generation", next.generation)
	return prev, next, nil
}

// KeyPair returns the installed key pair.
func (c *Core) KeyPair() (*axiom.KeyPair, error) {
	ks := c.keys.Load()
	if ks == nil {
		return nil, ErrNoKeys
	}
	return ks.pair, nil
}

// Generation counts installed key pairs; zero means none yet.
func (c *Core) Generation() uint64 {
	if ks := c.keys.Load(); ks != nil {
		return ks.generation
	}
	return 0
}

// Encrypt encrypts m under the installed public key.
func (c *Core) Encrypt(m uint32) (*axiom.Ciphertext, error) {
	return c.EncryptWithNonce(m, nil)
}

// EncryptWithNonce is Encrypt with a nonce distinguishing repeated frozen
// encryptions of the same plaintext.
func (c *Core) EncryptWithNonce(m uint32, nonce []byte) (*axiom.Ciphertext, error) {
	ks := c.keys.Load()
	if ks == nil {
		return nil, ErrNoKeys
	}
	ct, err := ks.encryptor.EncryptWithNonce(m, nonce)
	return c.observe("encrypt", ct, err)
}

// Decrypt decrypts ct with the installed secret key.
func (c *Core) Decrypt(ct *axiom.Ciphertext) (uint32, error) {
	ks := c.keys.Load()
	if ks == nil {
		return 0, ErrNoKeys
	}
	m, err := fhe.Decrypt(&ks.pair.SecretKey, ct)
	if err != nil {
		c.metrics.CipherFailure("decrypt", reason(err))
		return 0, err
	}
	c.metrics.CipherOp("decrypt", 0)
	return m, nil
}

// HomomorphicAdd returns an encryption of m1 + m2 mod T.
func (c *Core) HomomorphicAdd(a, b *axiom.Ciphertext) (*axiom.Ciphertext, error) {
	ct, err := c.evaluator.Add(a, b)
	return c.observe("add", ct, err)
}

// HomomorphicScale returns an encryption of k*m mod T.
func (c *Core) HomomorphicScale(ct *axiom.Ciphertext, k int64) (*axiom.Ciphertext, error) {
	out, err := c.evaluator.Scale(ct, k)
	return c.observe("scale", out, err)
}

// NoiseEstimate returns the tracked noise bound of ct and its remaining budget.
func (c *Core) NoiseEstimate(ct *axiom.Ciphertext) (noise, budget uint64) {
	return c.evaluator.NoiseEstimate(ct), c.evaluator.Budget(ct)
}

func (c *Core) observe(op string, ct *axiom.Ciphertext, err error) (*axiom.Ciphertext, error) {
	if err != nil {
		c.metrics.CipherFailure(op, reason(err))
		return nil, err
	}
	c.metrics.CipherOp(op, c.evaluator.Budget(ct))
	return ct, nil
}

// ExecutePolicy runs a registered procedure against cs and, when accepted,
// returns its receipt. The receipt is persisted when a store is configured,
// then appended to the chain. A rejected run returns no receipt.
func (c *Core) ExecutePolicy(id, version string, cs *policy.ConstraintSet, input policy.Value) (*axiom.ReceiptBundle, error) {
	_, r, err := c.Execute(id, version, cs, input)
	return r, err
}

// Execute is ExecutePolicy that also returns the execution record, which
// carries the output of an accepted run. A rejected run returns its record
// together with the rejection error.
func (c *Core) Execute(id, version string, cs *policy.ConstraintSet, input policy.Value) (*policy.Execution, *axiom.ReceiptBundle, error) {
	proc, err := c.registry.Resolve(id, version, 0)
	if err != nil {
		return nil, nil, err
	}
	exec, err := c.executor.Execute(proc, cs, input)
	if err != nil {
		return exec, nil, err
	}
	r, err := c.issue(exec)
	if err != nil {
		return exec, nil, err
	}
	return exec, r, nil
}

// ReplaceProcedure admits next as a new revision of a registered procedure.
// The admission is itself a receipted policy run.
func (c *Core) ReplaceProcedure(next *policy.Procedure) (*axiom.ReceiptBundle, error) {
	exec, err := c.registry.Replace(c.executor, next)
	if err != nil {
		return nil, err
	}
	return c.issue(exec)
}

func (c *Core) issue(exec *policy.Execution) (*axiom.ReceiptBundle, error) {
	if !exec.Accepted() {
		return nil, fmt.Errorf("run of %s is %s", exec.Procedure.Ref(), exec.State)
	}
	r, err := c.builder.Build(exec.Procedure.ID, exec.Procedure.Version, exec.Constraints, exec.Input, exec.Output)
	if err != nil {
		return nil, err
	}
	// The chain only links receipts that were persisted.
	if c.store != nil {
		if _, err := c.store.Put(r); err != nil {
			return nil, fmt.Errorf("persisting receipt: %w", err)
		}
	}
	if _, err := c.chain.Append(r); err != nil {
		return nil, err
	}
	c.logger.Info("receipt issued", "procedure", exec.Procedure.Ref(), "digest", r.CombinedDigest.String())
	return r, nil
}

// VerifyDeterminism evaluates the run n times and reports the distinct
// outcome digests.
func (c *Core) VerifyDeterminism(ctx context.Context, id, version string, cs *policy.ConstraintSet, input policy.Value, n uint32) (*axiom.VerificationResult, error) {
	return c.verifier.Verify(ctx, c.registry, id, version, cs, input, n)
}

// VerifyReceipt checks a receipt against the configured authority.
func (c *Core) VerifyReceipt(r *axiom.ReceiptBundle) error {
	if c.authority == nil {
		return receipt.CheckCombined(r)
	}
	return receipt.Verify(r, c.authority.Scheme(), c.authority.PublicKey())
}

// reason maps an error to a metrics label.
func reason(err error) string {
	for _, e := range []struct {
		err   error
		label string
	}{
		{axiom.ErrPlaintextOutOfRange, "plaintext_out_of_range"},
		{axiom.ErrDecryptionNoiseOverflow, "noise_overflow"},
		{axiom.ErrNoiseBudgetExceeded, "noise_budget"},
		{axiom.ErrIncompatibleCiphertexts, "incompatible"},
		{axiom.ErrInvalidCiphertext, "invalid_ciphertext"},
		{axiom.ErrInvalidSeed, "invalid_seed"},
		{axiom.ErrInvalidMode, "invalid_mode"},
		{axiom.ErrInvalidParameters, "invalid_parameters"},
	} {
		if errors.Is(err, e.err) {
			return e.label
		}
	}
	return "other"
}
