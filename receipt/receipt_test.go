package receipt

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/utils"
)

func testAuthority(t *testing.T, scheme string) authority.Authority {
	t.Helper()
	a, err := authority.New(scheme, "test-authority", utils.SHA3256([]byte("receipt-test")))
	require.NoError(t, err)
	return a
}

var (
	testConstraints = policy.MustConstraintSet(policy.NonNegative("non_negative"))
	testInput       = policy.Record{"start": policy.Int(100), "ops": policy.Ints{-30, 20}}
	testOutput      = policy.Int(90)
)

func TestBuildAndVerify(t *testing.T) {
	for _, name := range HashNames() {
		h, err := HashByName(name)
		require.NoError(t, err)
		a := testAuthority(t, authority.DefaultScheme)
		b := NewBuilder(h, a)

		r, err := b.Build("ledger.balance", "1.0.0", testConstraints, testInput, testOutput)
		require.NoError(t, err)
		require.Equal(t, name, r.Hash)
		require.Equal(t, "test-authority", r.Authority)
		require.NoError(t, Verify(r, authority.DefaultScheme, a.PublicKey()))
		require.NoError(t, VerifyDisclosure(r, "", a.PublicKey(), testConstraints, testInput, testOutput))

		again, err := b.Build("ledger.balance", "1.0.0", testConstraints, testInput, testOutput)
		require.NoError(t, err)
		require.Equal(t, r.CombinedDigest, again.CombinedDigest, "build must be deterministic")
	}
}

func TestHybridScheme(t *testing.T) {
	a := testAuthority(t, authority.HybridScheme)
	r, err := NewBuilder(DefaultHash(), a).Build("p", "1", testConstraints, testInput, testOutput)
	require.NoError(t, err)
	require.NoError(t, Verify(r, authority.HybridScheme, a.PublicKey()))
	require.ErrorIs(t, Verify(r, authority.DefaultScheme, a.PublicKey()), ErrBadSignature)
}

func TestTamperDetection(t *testing.T) {
	a := testAuthority(t, "")
	b := NewBuilder(DefaultHash(), a)
	r, err := b.Build("ledger.balance", "1.0.0", testConstraints, testInput, testOutput)
	require.NoError(t, err)

	mutations := map[string]func(r *axiom.ReceiptBundle){
		"procedure id":    func(r *axiom.ReceiptBundle) { r.ProcedureID = "other" },
		"version":         func(r *axiom.ReceiptBundle) { r.ProcedureVersion = "1.0.1" },
		"constraints":     func(r *axiom.ReceiptBundle) { r.ConstraintSetDigest[0] ^= 1 },
		"input":           func(r *axiom.ReceiptBundle) { r.InputDigest[0] ^= 1 },
		"output":          func(r *axiom.ReceiptBundle) { r.OutputDigest[0] ^= 1 },
		"combined digest": func(r *axiom.ReceiptBundle) { r.CombinedDigest[0] ^= 1 },
		"hash":            func(r *axiom.ReceiptBundle) { r.Hash = "md5" },
	}
	for name, mutate := range mutations {
		c := cloneBundle(r)
		mutate(c)
		require.ErrorIs(t, Verify(c, "", a.PublicKey()), ErrReceiptTampered, name)
	}

	c := cloneBundle(r)
	c.Signature[0] ^= 1
	require.ErrorIs(t, Verify(c, "", a.PublicKey()), ErrBadSignature)

	other := testAuthorityWithSeed(t, "someone else")
	require.ErrorIs(t, Verify(r, "", other.PublicKey()), ErrBadSignature)

	require.ErrorIs(t, VerifyDisclosure(r, "", a.PublicKey(), testConstraints, testInput, policy.Int(91)), ErrReceiptTampered)
	require.ErrorIs(t, CheckDisclosure(r, testConstraints, policy.Record{}, testOutput), ErrReceiptTampered)
	require.ErrorIs(t, CheckDisclosure(r, policy.MustConstraintSet(policy.NonNegative("other")), testInput, testOutput), ErrReceiptTampered)
	require.ErrorIs(t, Verify(nil, "", nil), ErrReceiptTampered)
}

func testAuthorityWithSeed(t *testing.T, label string) authority.Authority {
	t.Helper()
	a, err := authority.New("", label, utils.SHA3256([]byte(label)))
	require.NoError(t, err)
	return a
}

func TestUnsignedReceipt(t *testing.T) {
	r, err := NewBuilder(Hash{}, nil).Build("p", "1", testConstraints, testInput, testOutput)
	require.NoError(t, err)
	require.Empty(t, r.Signature)
	require.Equal(t, SHA3_256, r.Hash)
	require.ErrorIs(t, Verify(r, "", nil), ErrUnsigned)
	require.NoError(t, CheckDisclosure(r, testConstraints, testInput, testOutput))

	_, err = NewBuilder(DefaultHash(), nil).Build("", "1", testConstraints, testInput, testOutput)
	require.ErrorIs(t, err, axiom.ErrIncompleteSpecification)
}

func TestDigestFieldOrder(t *testing.T) {
	h := DefaultHash()
	d := ComputeDigests(h, testConstraints, testInput, testOutput)
	swapped := Digests{ConstraintSet: d.Input, Input: d.ConstraintSet, Output: d.Output}
	require.NotEqual(t, Combine(h, "p", "1", d), Combine(h, "p", "1", swapped))
	require.NotEqual(t, Combine(h, "p1", "", d), Combine(h, "p", "1", d))
}

func TestReceiptJSON(t *testing.T) {
	a := testAuthority(t, "")
	r, err := NewBuilder(DefaultHash(), a).Build("p", "1", testConstraints, testInput, testOutput)
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded axiom.ReceiptBundle
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(r, &decoded); diff != "" {
		t.Fatalf("receipt changed through JSON (-want +got):\n%s", diff)
	}
	require.NoError(t, Verify(&decoded, "", a.PublicKey()))
}

func cloneBundle(r *axiom.ReceiptBundle) *axiom.ReceiptBundle {
	c := *r
	c.ConstraintSetDigest = append(axiom.Digest(nil), r.ConstraintSetDigest...)
	c.InputDigest = append(axiom.Digest(nil), r.InputDigest...)
	c.OutputDigest = append(axiom.Digest(nil), r.OutputDigest...)
	c.CombinedDigest = append(axiom.Digest(nil), r.CombinedDigest...)
	c.Signature = append([]byte(nil), r.Signature...)
	return &c
}
