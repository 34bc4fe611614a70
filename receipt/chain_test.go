package receipt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BackendStack21/axiom-go/policy"
)

func buildChain(t *testing.T, n int) *Chain {
	t.Helper()
	b := NewBuilder(DefaultHash(), nil)
	c := NewChain(DefaultHash())
	for i := 0; i < n; i++ {
		r, err := b.Build("p", fmt.Sprintf("1.%d", i), testConstraints, testInput, policy.Int(int64(i)))
		require.NoError(t, err)
		e, err := c.Append(r)
		require.NoError(t, err)
		require.Equal(t, uint64(i), e.Index)
	}
	return c
}

func TestChainVerify(t *testing.T) {
	c := buildChain(t, 5)
	require.Equal(t, 5, c.Len())
	require.NoError(t, c.Verify())
	require.Equal(t, c.Entries()[4].Link, c.Head())
	require.Nil(t, NewChain(Hash{}).Head())
	require.NoError(t, NewChain(Hash{}).Verify())
}

func TestChainDetectsMutation(t *testing.T) {
	c := buildChain(t, 4)

	entries := c.Entries()
	entries[1], entries[2] = entries[2], entries[1]
	require.ErrorIs(t, VerifyEntries(DefaultHash(), entries), ErrChainBroken)

	entries = c.Entries()
	mutated := *entries[2].Receipt
	mutated.CombinedDigest = append([]byte(nil), mutated.CombinedDigest...)
	mutated.CombinedDigest[0] ^= 1
	entries[2].Receipt = &mutated
	require.ErrorIs(t, VerifyEntries(DefaultHash(), entries), ErrChainBroken)

	entries = c.Entries()
	require.ErrorIs(t, VerifyEntries(DefaultHash(), entries[1:]), ErrChainBroken)

	require.ErrorIs(t, VerifyEntries(hashNamed(BLAKE3_256), c.Entries()), ErrChainBroken)

	_, err := c.Append(nil)
	require.ErrorIs(t, err, ErrReceiptTampered)
}

func hashNamed(name string) Hash {
	h, err := HashByName(name)
	if err != nil {
		return DefaultHash()
	}
	return h
}
