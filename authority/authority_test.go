package authority

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BackendStack21/axiom-go/utils"
)

func testSeed(label string) []byte {
	return utils.SHA3256([]byte(label))
}

func TestDeterministicAuthority(t *testing.T) {
	for _, scheme := range []string{"", DefaultScheme, HybridScheme} {
		a, err := New(scheme, "insurer", testSeed("authority"))
		require.NoError(t, err)
		b, err := New(scheme, "insurer", testSeed("authority"))
		require.NoError(t, err)
		require.Equal(t, a.PublicKey(), b.PublicKey(), "scheme %q", scheme)
		require.Equal(t, "insurer", a.Name())

		digest := utils.SHA3256([]byte("receipt"))
		sig, err := a.Sign(digest)
		require.NoError(t, err)
		require.NoError(t, Verify(a.Scheme(), a.PublicKey(), digest, sig))

		sig[0] ^= 1
		require.ErrorIs(t, Verify(a.Scheme(), a.PublicKey(), digest, sig), ErrBadSignature)
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate(DefaultScheme, "a")
	require.NoError(t, err)
	b, err := Generate(DefaultScheme, "b")
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey(), b.PublicKey())
	require.Equal(t, DefaultScheme, a.Scheme())
}

func TestRejects(t *testing.T) {
	_, err := New("RSA-512", "x", testSeed("x"))
	require.ErrorIs(t, err, ErrUnknownScheme)

	_, err = New(DefaultScheme, "x", make([]byte, 32))
	require.Error(t, err, "all-zero seed must be refused")

	a, err := New(DefaultScheme, "x", testSeed("x"))
	require.NoError(t, err)
	_, err = a.Sign(nil)
	require.Error(t, err)

	err = Verify(DefaultScheme, []byte{1, 2, 3}, []byte("m"), []byte("s"))
	require.True(t, errors.Is(err, ErrBadSignature))

	require.Contains(t, Schemes(), DefaultScheme)
	require.Contains(t, Schemes(), HybridScheme)
}
