package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variables are AXIOM_ followed by the upper-cased key with
	// hyphens replaced by underscores, e.g. AXIOM_PARAM_SET.
	EnvPrefix = "axiom"

	// Top-level configuration keys
	ParamSetKey      = "param-set"
	ModeKey          = "mode"
	SeedKey          = "seed"
	HashKey          = "hash"
	SchemeKey        = "scheme"
	AuthoritySeedKey = "authority-seed"
	AuthorityNameKey = "authority-name"
	IterationsKey    = "iterations"
	WorkersKey       = "workers"
	AnalyticKey      = "analytic"
	StoreDirKey      = "store-dir"
	CacheSizeKey     = "cache-size"
	LogLevelKey      = "log-level"
	LogJSONKey       = "log-json"
)

const (
	defaultParamSet      = "AXM-1024"
	defaultHash          = "sha3-256"
	defaultScheme        = "Ed25519"
	defaultAuthorityName = "axiom"
	defaultIterations    = 10
	defaultCacheSize     = 128
	defaultLogLevel      = "info"
)
