package lwe

import (
	"testing"
)

// FuzzDeserializePublicKey tests public key deserialization with random inputs
func FuzzDeserializePublicKey(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})
	f.Add(make([]byte, 100))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DeserializePublicKey(data)
	})
}

// FuzzDeserializeSecretKey tests secret key deserialization with random inputs
func FuzzDeserializeSecretKey(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DeserializeSecretKey(data)
	})
}

// FuzzDeserializeCiphertext tests ciphertext deserialization with random inputs
func FuzzDeserializeCiphertext(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 0, 0, 0})
	f.Add(make([]byte, 28))

	f.Fuzz(func(t *testing.T, data []byte) {
		ct, err := DeserializeCiphertext(data)
		if err == nil && len(SerializeCiphertext(ct)) != len(data) {
			t.Fatal("re-encoding changed length")
		}
	})
}
