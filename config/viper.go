package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewConfig builds and validates the configuration.
func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(ConfigFileKey, "", "path to a JSON or YAML config file")
	fs.String(ParamSetKey, d.ParamSet, "lattice parameter set")
	fs.String(ModeKey, d.Mode, "randomness mode: frozen or secure")
	fs.String(SeedKey, "", "key seed for frozen mode (decimal integer or raw string)")
	fs.String(HashKey, d.Hash, "receipt digest function")
	fs.String(SchemeKey, d.Scheme, "receipt signature scheme")
	fs.String(AuthoritySeedKey, "", "hex seed of the signing authority key")
	fs.String(AuthorityNameKey, d.AuthorityName, "name of the signing authority")
	fs.Uint32(IterationsKey, d.Iterations, "determinism verification iterations")
	fs.Int(WorkersKey, 0, "parallel verification workers (0 = GOMAXPROCS)")
	fs.Bool(AnalyticKey, false, "evaluate pure procedures once during verification")
	fs.String(StoreDirKey, "", "directory for persisted receipts")
	fs.Int(CacheSizeKey, d.CacheSize, "receipt store cache size")
	fs.String(LogLevelKey, d.LogLevel, "log level")
	fs.Bool(LogJSONKey, false, "log as JSON")
}

// BuildViper binds fs and the AXIOM_ environment to a viper instance and
// reads the config file when one is given.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names: hyphens become underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

// SetDefaultConfigValues installs the defaults of Default on v.
func SetDefaultConfigValues(v *viper.Viper) {
	d := Default()
	v.SetDefault(ParamSetKey, d.ParamSet)
	v.SetDefault(ModeKey, d.Mode)
	v.SetDefault(SeedKey, "")
	v.SetDefault(HashKey, d.Hash)
	v.SetDefault(SchemeKey, d.Scheme)
	v.SetDefault(AuthoritySeedKey, "")
	v.SetDefault(AuthorityNameKey, d.AuthorityName)
	v.SetDefault(IterationsKey, d.Iterations)
	v.SetDefault(WorkersKey, 0)
	v.SetDefault(AnalyticKey, false)
	v.SetDefault(StoreDirKey, "")
	v.SetDefault(CacheSizeKey, d.CacheSize)
	v.SetDefault(LogLevelKey, d.LogLevel)
	v.SetDefault(LogJSONKey, false)
}

// BuildConfig unmarshals v. Flags take precedence over the environment,
// which takes precedence over the config file.
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
