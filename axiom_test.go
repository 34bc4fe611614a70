package axiom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/catalog"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/fhe"
	"github.com/BackendStack21/axiom-go/pipeline"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/receipt"
	"github.com/BackendStack21/axiom-go/store"
	"github.com/BackendStack21/axiom-go/verifier"
)

func TestEncryptDecryptDefaultParams(t *testing.T) {
	p := core.AXM1024Params
	seed := axiom.SeedFromUint64(42)

	kp, err := fhe.GenerateKeys(p, seed, axiom.ModeFrozen)
	require.NoError(t, err)
	enc, err := fhe.NewEncryptor(&kp.PublicKey, axiom.ModeFrozen, seed)
	require.NoError(t, err)

	ct, err := enc.Encrypt(7)
	require.NoError(t, err)
	m, err := fhe.Decrypt(&kp.SecretKey, ct)
	require.NoError(t, err)
	require.Equal(t, uint32(7), m)

	// Same seed, same bits.
	again, err := fhe.GenerateKeys(p, seed, axiom.ModeFrozen)
	require.NoError(t, err)
	enc2, err := fhe.NewEncryptor(&again.PublicKey, axiom.ModeFrozen, seed)
	require.NoError(t, err)
	ct2, err := enc2.Encrypt(7)
	require.NoError(t, err)
	require.Equal(t, ct, ct2)
}

func TestRejectedRunIssuesNoReceipt(t *testing.T) {
	s := store.NewMemStore()
	reg, err := catalog.NewRegistry()
	require.NoError(t, err)
	c, err := pipeline.New(core.AXMToyParams, axiom.ModeFrozen, pipeline.WithRegistry(reg), pipeline.WithStore(s))
	require.NoError(t, err)

	input := policy.Record{"start": policy.Int(10), "ops": policy.Ints{-20, 30}}
	r, err := c.ExecutePolicy(catalog.LedgerBalance, catalog.Version, catalog.BalanceConstraints(), input)
	require.Nil(t, r)
	name, ok := axiom.ViolatedConstraint(err)
	require.True(t, ok)
	require.Equal(t, "non_negative", name)

	keys, err := s.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
	require.Zero(t, c.Chain().Len())
}

func TestDriftedRevisionIsUninsurable(t *testing.T) {
	stable := catalog.Balance()
	drifted := catalog.Balance()
	drifted.Version = "1.0.1"
	src := verifier.SourceFunc(func(id, version string, iteration uint32) (*policy.Procedure, error) {
		if iteration == 5 {
			return drifted, nil
		}
		return stable, nil
	})

	v := verifier.New(policy.NewExecutor(), receipt.DefaultHash())
	input := policy.Record{"start": policy.Int(100), "ops": policy.Ints{-30, 20}}
	res, err := v.Verify(context.Background(), src, catalog.LedgerBalance, catalog.Version, catalog.BalanceConstraints(), input, 8)
	require.ErrorIs(t, err, axiom.ErrDigestMismatch)
	require.Greater(t, res.EntropyCount, uint32(1))
	require.Greater(t, res.RiskScore, uint32(0))
	require.Equal(t, verifier.StatusUninsurable, verifier.Status(res))
}

func TestEndToEnd(t *testing.T) {
	auth, err := authority.Generate(authority.DefaultScheme, "e2e")
	require.NoError(t, err)
	s, err := store.NewFileStore(t.TempDir(), store.DefaultCacheSize)
	require.NoError(t, err)
	reg, err := catalog.NewRegistry()
	require.NoError(t, err)
	c, err := pipeline.New(core.AXMToyParams, axiom.ModeFrozen,
		pipeline.WithRegistry(reg),
		pipeline.WithAuthority(auth),
		pipeline.WithStore(s),
	)
	require.NoError(t, err)
	_, err = c.GenerateKeys(axiom.SeedFromUint64(42))
	require.NoError(t, err)

	var values policy.List
	for i, m := range []uint32{3, 9, 11} {
		ct, err := c.EncryptWithNonce(m, []byte{byte(i)})
		require.NoError(t, err)
		values = append(values, policy.Cipher{Ciphertext: ct})
	}
	cs := catalog.CipherConstraints(core.AXMToyParams.NoiseBound)
	exec, r, err := c.Execute(catalog.FHESum, catalog.Version, cs, policy.Record{"values": values})
	require.NoError(t, err)

	out, ok := exec.Output.(policy.Cipher)
	require.True(t, ok)
	m, err := c.Decrypt(out.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, uint32(23), m)

	require.NoError(t, receipt.Verify(r, auth.Scheme(), auth.PublicKey()))
	require.NoError(t, c.VerifyReceipt(r))
	stored, err := s.Get(store.Key(r))
	require.NoError(t, err)
	require.Equal(t, r.CombinedDigest, stored.CombinedDigest)
	require.NoError(t, c.Chain().Verify())

	res, err := c.VerifyDeterminism(context.Background(), catalog.FHESum, catalog.Version, cs, policy.Record{"values": values}, 6)
	require.NoError(t, err)
	require.True(t, res.Insurable())
	require.Equal(t, r.CombinedDigest, res.Consensus)
}
