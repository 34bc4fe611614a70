package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/verifier"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaultNeedsModeAndSeed(t *testing.T) {
	cfg := Default()
	require.Empty(t, cfg.Mode)
	require.ErrorIs(t, cfg.Validate(), axiom.ErrInvalidMode)
	_, err := cfg.ParsedMode()
	require.ErrorIs(t, err, axiom.ErrInvalidMode)

	cfg.Mode = "frozen"
	require.ErrorIs(t, cfg.Validate(), axiom.ErrInvalidSeed)

	cfg.Seed = "42"
	require.NoError(t, cfg.Validate())
	require.Equal(t, axiom.SeedFromUint64(42), cfg.SeedBytes())

	cfg.Seed = "correct horse"
	require.Equal(t, []byte("correct horse"), cfg.SeedBytes())

	cfg.Seed = ""
	cfg.Mode = "secure"
	require.NoError(t, cfg.Validate())
	require.Nil(t, cfg.SeedBytes())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"param set":      func(c *Config) { c.ParamSet = "AXM-1" },
		"mode":           func(c *Config) { c.Mode = "fast" },
		"unset mode":     func(c *Config) { c.Mode = "" },
		"secure seed":    func(c *Config) { c.Mode = "secure" },
		"hash":           func(c *Config) { c.Hash = "md5" },
		"scheme":         func(c *Config) { c.Scheme = "RSA" },
		"authority seed": func(c *Config) { c.AuthoritySeed = "zz" },
		"iterations":     func(c *Config) { c.Iterations = 0 },
		"too many runs":  func(c *Config) { c.Iterations = verifier.MaxIterations + 1 },
		"workers":        func(c *Config) { c.Workers = -1 },
		"cache size":     func(c *Config) { c.CacheSize = 0 },
		"log level":      func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		cfg := Default()
		cfg.Mode = "frozen"
		cfg.Seed = "42"
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestSeedSpellings(t *testing.T) {
	seed := func(s string) []byte {
		cfg := Config{Seed: s}
		return cfg.SeedBytes()
	}
	require.Equal(t, axiom.SeedFromUint64(42), seed("42"))
	require.Equal(t, axiom.SeedFromUint64(0), seed("0"))

	// Other spellings are raw seeds, never aliases of a decimal one.
	for _, s := range []string{"0x2a", "052", "042", "+42", "010", " 42", "-0"} {
		require.Equal(t, []byte(s), seed(s), s)
	}
	require.NotEqual(t, seed("8"), seed("010"))
}

func TestFlags(t *testing.T) {
	fs := newFlagSet(t, "--param-set=AXM-TOY", "--mode=frozen", "--seed=7", "--iterations=3", "--analytic")
	v, err := BuildViper(fs)
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)

	require.Equal(t, "AXM-TOY", cfg.ParamSet)
	require.Equal(t, uint32(3), cfg.Iterations)
	require.True(t, cfg.Analytic)
	require.Equal(t, "sha3-256", cfg.Hash)

	p, err := cfg.Params()
	require.NoError(t, err)
	require.Equal(t, core.AXMToyParams, p)
	mode, err := cfg.ParsedMode()
	require.NoError(t, err)
	require.Equal(t, axiom.ModeFrozen, mode)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("AXIOM_PARAM_SET", "AXM-512")
	t.Setenv("AXIOM_MODE", "frozen")
	t.Setenv("AXIOM_SEED", "99")
	t.Setenv("AXIOM_CACHE_SIZE", "7")

	v, err := BuildViper(newFlagSet(t))
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)
	require.Equal(t, "AXM-512", cfg.ParamSet)
	require.Equal(t, "99", cfg.Seed)
	require.Equal(t, 7, cfg.CacheSize)

	// Flags win over the environment.
	v, err = BuildViper(newFlagSet(t, "--param-set=AXM-TOY"))
	require.NoError(t, err)
	cfg, err = NewConfig(v)
	require.NoError(t, err)
	require.Equal(t, "AXM-TOY", cfg.ParamSet)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axiom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("param-set: AXM-TOY\nmode: frozen\nseed: \"5\"\nhash: blake3-256\nworkers: 2\n"), 0o600))

	v, err := BuildViper(newFlagSet(t, "--config-file="+path))
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)
	require.Equal(t, "AXM-TOY", cfg.ParamSet)
	require.Equal(t, "blake3-256", cfg.Hash)
	require.Equal(t, 2, cfg.Workers)

	_, err = BuildViper(newFlagSet(t, "--config-file="+filepath.Join(t.TempDir(), "missing.json")))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"param-set": "AXM-TOY", "seed": "1", "mode": "nope"}`), 0o600))
	v, err = BuildViper(newFlagSet(t, "--config-file="+bad))
	require.NoError(t, err)
	_, err = NewConfig(v)
	require.ErrorIs(t, err, axiom.ErrInvalidMode)
}

func TestAuthority(t *testing.T) {
	cfg := Default()
	cfg.AuthoritySeed = "99e40122f497a7a095c2676ff720a6c8ae17410c8b25b5aec626ef087d29b1ea"
	a, err := cfg.Authority()
	require.NoError(t, err)
	b, err := cfg.Authority()
	require.NoError(t, err)
	require.Equal(t, a.PublicKey(), b.PublicKey())
	require.Equal(t, "axiom", a.Name())

	cfg.AuthoritySeed = ""
	c, err := cfg.Authority()
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogJSON = true
	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hello", "k", 1)
	logger.Debug("hidden")
	require.Contains(t, buf.String(), `"message":"hello"`)
	require.NotContains(t, buf.String(), "hidden")

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger(&buf)
	require.Error(t, err)
}
