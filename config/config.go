// Package config assembles runtime configuration from flags, environment
// variables and an optional config file.
package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/authority"
	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/receipt"
	"github.com/BackendStack21/axiom-go/verifier"
)

// Config is the runtime configuration shared by the CLI and the examples.
type Config struct {
	ParamSet      string `mapstructure:"param-set" json:"param-set"`
	Mode          string `mapstructure:"mode" json:"mode"`
	Seed          string `mapstructure:"seed" json:"seed"`
	Hash          string `mapstructure:"hash" json:"hash"`
	Scheme        string `mapstructure:"scheme" json:"scheme"`
	AuthoritySeed string `mapstructure:"authority-seed" json:"authority-seed"`
	AuthorityName string `mapstructure:"authority-name" json:"authority-name"`
	Iterations    uint32 `mapstructure:"iterations" json:"iterations"`
	Workers       int    `mapstructure:"workers" json:"workers"`
	Analytic      bool   `mapstructure:"analytic" json:"analytic"`
	StoreDir      string `mapstructure:"store-dir" json:"store-dir"`
	CacheSize     int    `mapstructure:"cache-size" json:"cache-size"`
	LogLevel      string `mapstructure:"log-level" json:"log-level"`
	LogJSON       bool   `mapstructure:"log-json" json:"log-json"`
}

// Default returns the configuration used when nothing is overridden. The
// mode is left unset: callers always choose frozen or secure explicitly.
func Default() Config {
	return Config{
		ParamSet:      defaultParamSet,
		Hash:          defaultHash,
		Scheme:        defaultScheme,
		AuthorityName: defaultAuthorityName,
		Iterations:    defaultIterations,
		CacheSize:     defaultCacheSize,
		LogLevel:      defaultLogLevel,
	}
}

// Validate checks every field that can be checked without side effects.
func (c *Config) Validate() error {
	if _, err := core.GetParams(c.ParamSet); err != nil {
		return err
	}
	mode, err := c.ParsedMode()
	if err != nil {
		return err
	}
	switch {
	case mode == axiom.ModeFrozen && c.Seed == "":
		return fmt.Errorf("%w: frozen mode requires a seed", axiom.ErrInvalidSeed)
	case mode == axiom.ModeSecure && c.Seed != "":
		return fmt.Errorf("%w: secure mode draws its own seed", axiom.ErrInvalidSeed)
	}
	if _, err := receipt.HashByName(c.Hash); err != nil {
		return err
	}
	if _, err := authority.Scheme(c.Scheme); err != nil {
		return err
	}
	if c.AuthoritySeed != "" {
		if _, err := hex.DecodeString(c.AuthoritySeed); err != nil {
			return fmt.Errorf("invalid authority seed: %w", err)
		}
	}
	if c.Iterations == 0 || c.Iterations > verifier.MaxIterations {
		return fmt.Errorf("iterations must be in [1, %d], got %d", verifier.MaxIterations, c.Iterations)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count %d", c.Workers)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("invalid cache size %d", c.CacheSize)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Params returns the selected parameter set.
func (c *Config) Params() (axiom.Parameters, error) {
	return core.GetParams(c.ParamSet)
}

// ParsedMode returns the selected randomness mode. An unset mode is an error.
func (c *Config) ParsedMode() (axiom.Mode, error) {
	if strings.TrimSpace(c.Mode) == "" {
		return axiom.ModeUnspecified, fmt.Errorf("%w: mode not set, pass --%s frozen or --%s secure", axiom.ErrInvalidMode, ModeKey, ModeKey)
	}
	return axiom.ParseMode(c.Mode)
}

// SeedBytes returns the key seed. Seeds written as canonical decimal
// integers ("42", not "042" or "0x2a") are encoded with axiom.SeedFromUint64,
// anything else is used verbatim. An empty seed yields nil.
func (c *Config) SeedBytes() []byte {
	if c.Seed == "" {
		return nil
	}
	if v, ok := decimalSeed(c.Seed); ok {
		return axiom.SeedFromUint64(v)
	}
	return []byte(c.Seed)
}

// decimalSeed accepts s only if it is the canonical decimal form of its
// value, so that no two spellings select the same numeric seed.
func decimalSeed(s string) (uint64, bool) {
	v, err := cast.ToUint64E(s)
	if err != nil || strconv.FormatUint(v, 10) != s {
		return 0, false
	}
	return v, true
}

// HashFunc returns the receipt digest function.
func (c *Config) HashFunc() (receipt.Hash, error) {
	return receipt.HashByName(c.Hash)
}

// Authority returns the signing authority. With an authority seed the key is
// derived from it, otherwise a fresh key is generated.
func (c *Config) Authority() (authority.Authority, error) {
	if c.AuthoritySeed == "" {
		return authority.Generate(c.Scheme, c.AuthorityName)
	}
	seed, err := hex.DecodeString(c.AuthoritySeed)
	if err != nil {
		return nil, fmt.Errorf("invalid authority seed: %w", err)
	}
	return authority.New(c.Scheme, c.AuthorityName, seed)
}

// NewLogger returns a logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	opts := []log.Option{log.LevelOption(level)}
	if c.LogJSON {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(w, opts...), nil
}
