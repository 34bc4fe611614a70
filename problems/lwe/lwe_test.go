package lwe

import (
	"bytes"
	"errors"
	"testing"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/utils"
)

func toyKeys(t *testing.T, seed []byte) *axiom.KeyPair {
	t.Helper()
	kp, err := KeyGen(core.AXMToyParams, seed)
	if err != nil {
		t.Fatalf("KeyGen failed: %v", err)
	}
	return kp
}

func TestKeyGenDeterministic(t *testing.T) {
	a := toyKeys(t, []byte("seed-1"))
	b := toyKeys(t, []byte("seed-1"))
	c := toyKeys(t, []byte("seed-2"))

	if !bytes.Equal(SerializePublicKey(&a.PublicKey), SerializePublicKey(&b.PublicKey)) {
		t.Error("identical seeds produced different public keys")
	}
	if !bytes.Equal(SerializeSecretKey(&a.SecretKey), SerializeSecretKey(&b.SecretKey)) {
		t.Error("identical seeds produced different secret keys")
	}
	if bytes.Equal(SerializePublicKey(&a.PublicKey), SerializePublicKey(&c.PublicKey)) {
		t.Error("different seeds produced identical public keys")
	}
	for _, v := range a.SecretKey.S {
		if v < -1 || v > 1 {
			t.Fatalf("secret coefficient %d not ternary", v)
		}
	}
}

func TestKeyGenRejects(t *testing.T) {
	if _, err := KeyGen(core.AXMToyParams, nil); !errors.Is(err, axiom.ErrInvalidSeed) {
		t.Errorf("expected ErrInvalidSeed, got %v", err)
	}
	bad := core.AXMToyParams
	bad.T = 3
	if _, err := KeyGen(bad, []byte("x")); !errors.Is(err, axiom.ErrInvalidParameters) {
		t.Errorf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestPublicKeyRelation(t *testing.T) {
	// B - A*s must be a small error for every sample.
	kp := toyKeys(t, []byte("relation"))
	p := kp.PublicKey.Params
	mod := utils.NewModulus(p.Q)
	for i := 0; i < p.M; i++ {
		row := kp.PublicKey.A[i*p.N : (i+1)*p.N]
		e := mod.Centered(mod.Sub(kp.PublicKey.B[i], mod.DotTernary(row, kp.SecretKey.S)))
		if utils.Abs(e) > p.ErrorBound {
			t.Fatalf("sample %d has error %d beyond %d", i, e, p.ErrorBound)
		}
	}
}

func TestEncryptDecode(t *testing.T) {
	kp := toyKeys(t, []byte("roundtrip"))
	p := kp.PublicKey.Params
	fresh, _ := core.FreshNoise(p)

	for m := uint64(0); m < p.T; m += 17 {
		rnd, err := utils.NewFrozenStream("test-encrypt", axiom.SeedFromUint64(m))
		if err != nil {
			t.Fatal(err)
		}
		ct, err := Encrypt(&kp.PublicKey, m, rnd)
		if err != nil {
			t.Fatalf("Encrypt(%d) failed: %v", m, err)
		}
		if ct.Noise != fresh {
			t.Errorf("fresh noise = %d, want %d", ct.Noise, fresh)
		}
		phase, err := Phase(&kp.SecretKey, ct)
		if err != nil {
			t.Fatal(err)
		}
		got, noise := Decode(p, phase)
		if got != m {
			t.Errorf("decoded %d, want %d", got, m)
		}
		if utils.Abs(noise) > fresh {
			t.Errorf("implied noise %d exceeds fresh bound %d", noise, fresh)
		}
	}
}

func TestEncryptRejects(t *testing.T) {
	kp := toyKeys(t, []byte("reject"))
	rnd := utils.NewSecureStream()
	if _, err := Encrypt(&kp.PublicKey, kp.PublicKey.Params.T, rnd); !errors.Is(err, axiom.ErrPlaintextOutOfRange) {
		t.Errorf("expected ErrPlaintextOutOfRange, got %v", err)
	}
	broken := kp.PublicKey
	broken.B = broken.B[:1]
	if _, err := Encrypt(&broken, 1, rnd); err == nil {
		t.Error("expected error for truncated public key")
	}
}

func TestPhaseRejectsMalformed(t *testing.T) {
	kp := toyKeys(t, []byte("phase"))
	p := kp.PublicKey.Params
	if _, err := Phase(&kp.SecretKey, &axiom.Ciphertext{A: make([]uint64, p.N-1)}); !errors.Is(err, axiom.ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
	if _, err := Phase(&kp.SecretKey, &axiom.Ciphertext{A: make([]uint64, p.N), B: p.Q}); !errors.Is(err, axiom.ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
	a := make([]uint64, p.N)
	a[0] = p.Q
	if _, err := Phase(&kp.SecretKey, &axiom.Ciphertext{A: a}); !errors.Is(err, axiom.ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestDecodeRounding(t *testing.T) {
	p := core.AXMToyParams
	delta := p.Delta()
	mod := utils.NewModulus(p.Q)

	cases := []struct {
		phase uint64
		m     uint64
		noise int64
	}{
		{0, 0, 0},
		{delta*3 + 5, 3, 5},
		{delta*3 - 5, 3, -5},
		{mod.Neg(7), 0, -7},
		{delta*(p.T-1) + delta/2, 0, -int64(delta / 2)},
	}
	for _, tc := range cases {
		m, noise := Decode(p, tc.phase)
		if m != tc.m || noise != tc.noise {
			t.Errorf("Decode(%d) = (%d, %d), want (%d, %d)", tc.phase, m, noise, tc.m, tc.noise)
		}
	}
}

func TestExpandMatrix(t *testing.T) {
	p := core.AXMToyParams
	seed := utils.HashWithDomain("test", nil)
	a, err := ExpandMatrix(seed, p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ExpandMatrix(seed, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != p.M*p.N {
		t.Fatalf("matrix has %d elements", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("matrix expansion is not deterministic")
		}
		if a[i] >= p.Q {
			t.Fatal("matrix element out of range")
		}
	}
	if _, err := ExpandMatrix(seed[:16], p); !errors.Is(err, axiom.ErrInvalidSeed) {
		t.Errorf("expected ErrInvalidSeed, got %v", err)
	}
}

func TestSerializeDeserialize(t *testing.T) {
	kp := toyKeys(t, []byte("serialize"))

	pk, err := DeserializePublicKey(SerializePublicKey(&kp.PublicKey))
	if err != nil {
		t.Fatalf("DeserializePublicKey failed: %v", err)
	}
	if pk.Params != kp.PublicKey.Params || len(pk.A) != len(kp.PublicKey.A) {
		t.Fatal("public key mismatch")
	}
	for i := range pk.A {
		if pk.A[i] != kp.PublicKey.A[i] {
			t.Fatal("re-expanded matrix differs")
		}
	}

	sk, err := DeserializeSecretKey(SerializeSecretKey(&kp.SecretKey))
	if err != nil {
		t.Fatalf("DeserializeSecretKey failed: %v", err)
	}
	if !bytes.Equal(SerializeSecretKey(sk), SerializeSecretKey(&kp.SecretKey)) {
		t.Error("secret key mismatch")
	}

	rnd, _ := utils.NewFrozenStream("test", []byte("ct"))
	ct, err := Encrypt(&kp.PublicKey, 9, rnd)
	if err != nil {
		t.Fatal(err)
	}
	ct2, err := DeserializeCiphertext(SerializeCiphertext(ct))
	if err != nil {
		t.Fatalf("DeserializeCiphertext failed: %v", err)
	}
	if ct2.B != ct.B || ct2.Noise != ct.Noise || len(ct2.A) != len(ct.A) {
		t.Error("ciphertext mismatch")
	}
}

func TestDeserializeRejects(t *testing.T) {
	kp := toyKeys(t, []byte("reject-decode"))
	pkBytes := SerializePublicKey(&kp.PublicKey)
	if _, err := DeserializePublicKey(pkBytes[:len(pkBytes)-1]); err == nil {
		t.Error("expected error for truncated public key")
	}
	if _, err := DeserializePublicKey(append(pkBytes, 0)); err == nil {
		t.Error("expected error for trailing bytes")
	}

	skBytes := SerializeSecretKey(&kp.SecretKey)
	skBytes[len(skBytes)-1] = 2
	if _, err := DeserializeSecretKey(skBytes); err == nil {
		t.Error("expected error for non-ternary coefficient")
	}

	if _, err := DeserializeCiphertext([]byte{0, 0, 0, 0}); !errors.Is(err, axiom.ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}
