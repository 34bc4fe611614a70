package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/catalog"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/fhe"
	"github.com/BackendStack21/axiom-go/metrics"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/receipt"
	"github.com/BackendStack21/axiom-go/store"
	"github.com/BackendStack21/axiom-go/utils"
)

func newCore(t *testing.T, opts ...Option) *Core {
	t.Helper()
	reg, err := catalog.NewRegistry()
	require.NoError(t, err)
	c, err := New(core.AXMToyParams, axiom.ModeFrozen, append([]Option{WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	_, err = c.GenerateKeys(axiom.SeedFromUint64(42))
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(core.AXMToyParams, axiom.ModeUnspecified)
	require.ErrorIs(t, err, axiom.ErrInvalidMode)

	bad := core.AXMToyParams
	bad.T = 3
	_, err = New(bad, axiom.ModeFrozen)
	require.ErrorIs(t, err, axiom.ErrInvalidParameters)

	c, err := New(core.AXMToyParams, axiom.ModeSecure)
	require.NoError(t, err)
	_, err = c.Encrypt(1)
	require.ErrorIs(t, err, ErrNoKeys)
	_, err = c.GenerateKeys([]byte("seed"))
	require.ErrorIs(t, err, axiom.ErrInvalidSeed)
	_, err = c.GenerateKeys(nil)
	require.NoError(t, err)
	ct, err := c.Encrypt(9)
	require.NoError(t, err)
	m, err := c.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, uint32(9), m)
}

func TestCipherOps(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	c := newCore(t, WithMetrics(m))

	a, err := c.Encrypt(40)
	require.NoError(t, err)
	b, err := c.EncryptWithNonce(2, []byte("n1"))
	require.NoError(t, err)

	sum, err := c.HomomorphicAdd(a, b)
	require.NoError(t, err)
	got, err := c.Decrypt(sum)
	require.NoError(t, err)
	require.Equal(t, uint32(42), got)

	scaled, err := c.HomomorphicScale(sum, 3)
	require.NoError(t, err)
	got, err = c.Decrypt(scaled)
	require.NoError(t, err)
	require.Equal(t, uint32(126), got)

	noise, budget := c.NoiseEstimate(scaled)
	require.Equal(t, c.Params().NoiseBound, noise+budget)

	_, err = c.HomomorphicScale(scaled, 1<<40)
	require.ErrorIs(t, err, axiom.ErrNoiseBudgetExceeded)
	_, err = c.Encrypt(uint32(c.Params().T))
	require.ErrorIs(t, err, axiom.ErrPlaintextOutOfRange)

	// keygen, encrypt, add, decrypt and scale succeeded; scale and encrypt failed once.
	n, err := testutil.GatherAndCount(reg, "axiom_cipher_operations_total")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	n, err = testutil.GatherAndCount(reg, "axiom_cipher_failures_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestFrozenReplay(t *testing.T) {
	c1 := newCore(t)
	c2 := newCore(t)
	kp1, err := c1.KeyPair()
	require.NoError(t, err)
	kp2, err := c2.KeyPair()
	require.NoError(t, err)
	require.Equal(t, kp1.PublicKey.B, kp2.PublicKey.B)

	ct1, err := c1.Encrypt(7)
	require.NoError(t, err)
	ct2, err := c2.Encrypt(7)
	require.NoError(t, err)
	require.Equal(t, ct1, ct2)
}

func TestRotateKeys(t *testing.T) {
	c := newCore(t)
	require.Equal(t, uint64(1), c.Generation())
	old, err := c.Encrypt(5)
	require.NoError(t, err)

	prev, err := c.RotateKeys(axiom.SeedFromUint64(43))
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, uint64(2), c.Generation())

	// The previous secret key still opens ciphertexts made before rotation.
	m, err := fhe.Decrypt(&prev.SecretKey, old)
	require.NoError(t, err)
	require.Equal(t, uint32(5), m)

	current, err := c.KeyPair()
	require.NoError(t, err)
	require.NotEqual(t, prev.PublicKey.B, current.PublicKey.B)

	_, err = c.RotateKeys(nil)
	require.ErrorIs(t, err, axiom.ErrInvalidSeed)
	require.Equal(t, uint64(2), c.Generation())
}

func TestExecutePolicy(t *testing.T) {
	a, err := authority.New("", "ledger-authority", utils.SHA3256([]byte("pipeline-test")))
	require.NoError(t, err)
	s := store.NewMemStore()
	c := newCore(t, WithAuthority(a), WithStore(s))
	cs := catalog.BalanceConstraints()

	r, err := c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, cs,
		policy.Record{"start": policy.Int(100), "ops": policy.Ints{-30, 20}})
	require.NoError(t, err)
	require.NoError(t, c.VerifyReceipt(r))
	require.NoError(t, receipt.Verify(r, "", a.PublicKey()))
	require.Equal(t, 1, c.Chain().Len())
	stored, err := s.Get(store.Key(r))
	require.NoError(t, err)
	require.Equal(t, r, stored)

	// A negative intermediate rejects the run and produces no receipt.
	r, err = c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, cs,
		policy.Record{"start": policy.Int(10), "ops": policy.Ints{-20, 30}})
	require.Nil(t, r)
	name, ok := axiom.ViolatedConstraint(err)
	require.True(t, ok)
	require.Equal(t, "non_negative", name)
	require.Equal(t, 1, c.Chain().Len())

	_, err = c.ExecutePolicy("missing", "1", cs, policy.Int(1))
	require.ErrorIs(t, err, axiom.ErrIncompleteSpecification)
	_, err = c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, nil, policy.Int(1))
	require.ErrorIs(t, err, axiom.ErrIncompleteSpecification)
}

// failingStore refuses every write.
type failingStore struct{}

func (failingStore) Put(*axiom.ReceiptBundle) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Get(key string) (*axiom.ReceiptBundle, error) {
	return nil, store.ErrNotFound
}

func (failingStore) Keys() ([]string, error) { return nil, nil }

func TestExecutePolicyPersistFailure(t *testing.T) {
	c := newCore(t, WithStore(failingStore{}))
	r, err := c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, catalog.BalanceConstraints(),
		policy.Record{"start": policy.Int(100), "ops": policy.Ints{-30, 20}})
	require.ErrorContains(t, err, "disk full")
	require.Nil(t, r)
	require.Zero(t, c.Chain().Len())
	require.Nil(t, c.Chain().Head())
}

func TestExecutePolicyMalformedOutput(t *testing.T) {
	reg, err := policy.NewRegistry(&policy.Procedure{
		ID:      "report.partial",
		Version: "1",
		Run: func(*policy.Env, policy.Value) (policy.Value, error) {
			return policy.Record{"total": policy.Int(1), "detail": nil}, nil
		},
	})
	require.NoError(t, err)
	s := store.NewMemStore()
	c, err := New(core.AXMToyParams, axiom.ModeFrozen, WithRegistry(reg), WithStore(s))
	require.NoError(t, err)

	cs := policy.MustConstraintSet(policy.KindIs("record_output", policy.KindRecord))
	r, err := c.ExecutePolicy("report.partial", "1", cs, policy.Int(0))
	require.ErrorIs(t, err, axiom.ErrProcedureFailed)
	require.ErrorIs(t, err, policy.ErrNilValue)
	require.Nil(t, r)
	require.Zero(t, c.Chain().Len())

	_, err = c.ExecutePolicy("report.partial", "1", cs, policy.List{nil})
	require.ErrorIs(t, err, axiom.ErrIncompleteSpecification)

	res, err := c.VerifyDeterminism(context.Background(), "report.partial", "1", cs, policy.Int(0), 4)
	require.ErrorIs(t, err, axiom.ErrProcedureFailed)
	require.False(t, res.Insurable())
}

func TestEncryptedPolicy(t *testing.T) {
	c := newCore(t)
	var values policy.List
	for i, m := range []uint32{10, 20, 30} {
		ct, err := c.EncryptWithNonce(m, []byte{byte(i)})
		require.NoError(t, err)
		values = append(values, policy.Cipher{Ciphertext: ct})
	}
	cs, err := catalog.DefaultConstraints(catalog.FHESum, c.Params())
	require.NoError(t, err)
	r, err := c.ExecutePolicy(catalog.FHESum, catalog.Version, cs, policy.Record{"values": values})
	require.NoError(t, err)
	require.NoError(t, c.VerifyReceipt(r))
}

func TestVerifyDeterminism(t *testing.T) {
	c := newCore(t, WithVerifierOptions())
	input := policy.Record{"start": policy.Int(5), "ops": policy.Ints{1, 2, 3}}
	res, err := c.VerifyDeterminism(context.Background(), catalog.LedgerBalance, catalog.Version, catalog.BalanceConstraints(), input, 10)
	require.NoError(t, err)
	require.True(t, res.Insurable())

	r, err := c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, catalog.BalanceConstraints(), input)
	require.NoError(t, err)
	require.Equal(t, r.CombinedDigest, res.Consensus)
}

func TestReplaceProcedure(t *testing.T) {
	c := newCore(t)
	next := catalog.Balance()
	next.Version = "1.1.0"

	r, err := c.ReplaceProcedure(next)
	require.NoError(t, err)
	require.Equal(t, policy.ReplaceProcedureID, r.ProcedureID)
	require.Equal(t, []string{"1.0.0", "1.1.0"}, c.Registry().Versions(catalog.LedgerBalance))
	require.Equal(t, 1, c.Chain().Len())

	_, err = c.ReplaceProcedure(next)
	name, _ := axiom.ViolatedConstraint(err)
	require.Equal(t, "fresh_version", name)

	unknown := catalog.Balance()
	unknown.ID = "ledger.unknown"
	_, err = c.ReplaceProcedure(unknown)
	name, _ = axiom.ViolatedConstraint(err)
	require.Equal(t, "known_procedure", name)
	require.Equal(t, 1, c.Chain().Len())
}

func TestConcurrentExecution(t *testing.T) {
	c := newCore(t)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.ExecutePolicy(catalog.StatsSum, catalog.Version, catalog.SumConstraints(0, 1000),
				policy.Record{"values": policy.Ints{int64(i), 1}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 16, c.Chain().Len())
	require.NoError(t, c.Chain().Verify())
}
