package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/problems/lwe"
)

// maxInputFileSize bounds every file the CLI reads.
const maxInputFileSize = 100 * 1024 * 1024

// keyPairExport is the on-disk form of a key pair.
type keyPairExport struct {
	Params    string `json:"params"`
	Mode      string `json:"mode"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key,omitempty"`
	CreatedAt string `json:"created_at"`
	KeyHMAC   string `json:"key_hmac,omitempty"`
}

// cipherExport is the on-disk form of a ciphertext.
type cipherExport struct {
	Params     string `json:"params"`
	Ciphertext string `json:"ciphertext"`
	Noise      uint64 `json:"noise"`
	Budget     uint64 `json:"budget"`
}

// keyHMAC detects accidental corruption of an exported key pair. It is keyed
// with the public key and therefore offers no authenticity.
func keyHMAC(publicKey, secretKey string) string {
	h := hmac.New(sha256.New, []byte(publicKey))
	h.Write([]byte(secretKey))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func exportKeyPair(kp *axiom.KeyPair, mode axiom.Mode) keyPairExport {
	pk := base64.StdEncoding.EncodeToString(lwe.SerializePublicKey(&kp.PublicKey))
	sk := base64.StdEncoding.EncodeToString(lwe.SerializeSecretKey(&kp.SecretKey))
	return keyPairExport{
		Params:    kp.PublicKey.Params.Name,
		Mode:      mode.String(),
		PublicKey: pk,
		SecretKey: sk,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		KeyHMAC:   keyHMAC(pk, sk),
	}
}

func exportCipher(p axiom.Parameters, ct *axiom.Ciphertext) cipherExport {
	budget := uint64(0)
	if ct.Noise < p.NoiseBound {
		budget = p.NoiseBound - ct.Noise
	}
	return cipherExport{
		Params:     p.Name,
		Ciphertext: base64.StdEncoding.EncodeToString(lwe.SerializeCiphertext(ct)),
		Noise:      ct.Noise,
		Budget:     budget,
	}
}

func readFile(filename string) ([]byte, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > maxInputFileSize {
		return nil, fmt.Errorf("input file too large: %d > %d bytes", info.Size(), maxInputFileSize)
	}
	return os.ReadFile(filename)
}

func readJSON(filename string, v any) error {
	data, err := readFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}

func loadKeyPair(filename string) (*keyPairExport, error) {
	var exp keyPairExport
	if err := readJSON(filename, &exp); err != nil {
		return nil, err
	}
	if exp.SecretKey != "" && exp.KeyHMAC != "" && !hmac.Equal([]byte(keyHMAC(exp.PublicKey, exp.SecretKey)), []byte(exp.KeyHMAC)) {
		return nil, fmt.Errorf("%s: key integrity check failed", filename)
	}
	return &exp, nil
}

func loadPublicKey(filename string) (*axiom.PublicKey, error) {
	exp, err := loadKeyPair(filename)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(exp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	return lwe.DeserializePublicKey(data)
}

func loadSecretKey(filename string) (*axiom.SecretKey, error) {
	exp, err := loadKeyPair(filename)
	if err != nil {
		return nil, err
	}
	if exp.SecretKey == "" {
		return nil, fmt.Errorf("%s holds no secret key", filename)
	}
	data, err := base64.StdEncoding.DecodeString(exp.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decoding secret key: %w", err)
	}
	return lwe.DeserializeSecretKey(data)
}

func loadCipher(filename string) (*axiom.Ciphertext, axiom.Parameters, error) {
	var exp cipherExport
	if err := readJSON(filename, &exp); err != nil {
		return nil, axiom.Parameters{}, err
	}
	p, err := core.GetParams(exp.Params)
	if err != nil {
		return nil, axiom.Parameters{}, err
	}
	data, err := base64.StdEncoding.DecodeString(exp.Ciphertext)
	if err != nil {
		return nil, axiom.Parameters{}, fmt.Errorf("decoding ciphertext: %w", err)
	}
	ct, err := lwe.DeserializeCiphertext(data)
	if err != nil {
		return nil, axiom.Parameters{}, err
	}
	return ct, p, nil
}

func marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
