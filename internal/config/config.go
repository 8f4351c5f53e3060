// Package config loads and validates the anchorsync configuration.
//
// Configuration is YAML, validated against the embedded CUE schema
// before decoding. CUE catches unknown fields, wrong types, and
// out-of-range values with position-bearing messages; the Go side then
// applies defaults for everything the operator left out, so a minimal
// file like "network: testnet" is a complete configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/s4ledger/anchorsync/internal/breaker"
	"github.com/s4ledger/anchorsync/internal/datacap"
	"github.com/s4ledger/anchorsync/internal/syncer"
	"github.com/s4ledger/anchorsync/internal/validator"
)

//go:embed schema.cue
var schemaCUE string

// LedgerDependency is the breaker name guarding the ledger network as a
// whole. A breaker with this name always exists after Load, whether or
// not the operator configured one.
const LedgerDependency = "ledger"

// Defaults for fields the operator may omit.
const (
	DefaultDatabasePath  = "anchorsync.db"
	DefaultNetwork       = "testnet"
	DefaultPurgeAfterDay = 30
)

// DefaultNetworks are the built-in validator pools, production nodes
// plus fallbacks per network. An operator-supplied networks section
// replaces this table entirely.
func DefaultNetworks() map[string][]validator.Endpoint {
	return map[string][]validator.Endpoint{
		"testnet": {
			{ID: "testnet-primary", URL: "https://s.altnet.rippletest.net:51234", Priority: 1},
			{ID: "testnet-fallback-1", URL: "https://testnet.xrpl-labs.com", Priority: 2},
		},
		"mainnet": {
			{ID: "mainnet-primary", URL: "https://xrplcluster.com", Priority: 1},
			{ID: "mainnet-fullhist", URL: "https://xrpl.ws", Priority: 2},
			{ID: "mainnet-fallback", URL: "https://s1.ripple.com:51234", Priority: 3},
		},
	}
}

// Config is the decoded configuration with defaults applied.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Network        string                          `yaml:"network"`
	Networks       map[string][]validator.Endpoint `yaml:"networks"`
	Breakers       map[string]BreakerSection       `yaml:"breakers"`
	DataCap        DataCapSection                  `yaml:"data_cap"`
	Syncer         SyncerSection                   `yaml:"syncer"`
	PurgeAfterDays int                             `yaml:"purge_after_days"`
}

// BreakerSection is the YAML shape of one breaker's thresholds.
// Durations are plain seconds in the file.
type BreakerSection struct {
	FailureThreshold       int     `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds float64 `yaml:"recovery_timeout_seconds"`
	SuccessThreshold       int     `yaml:"success_threshold"`
}

// DataCapSection is the YAML shape of the data cap ceilings.
type DataCapSection struct {
	MaxQueueSize int `yaml:"max_queue_size"`
	MaxStorageMB int `yaml:"max_storage_mb"`
}

// SyncerSection is the YAML shape of the batch loop tuning.
type SyncerSection struct {
	BatchSize             int     `yaml:"batch_size"`
	MaxAttempts           int     `yaml:"max_attempts"`
	AttemptTimeoutSeconds float64 `yaml:"attempt_timeout_seconds"`
	IntervalSeconds       float64 `yaml:"interval_seconds"`
	AutoRetry             *bool   `yaml:"auto_retry"`
}

// ValidationError carries the CUE diagnostics for an invalid file.
type ValidationError struct {
	File    string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s:\n%s", e.File, e.Details)
}

// Default returns the built-in configuration, used when no config file
// is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, validates, and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes validates and decodes configuration data. The filename is
// used only for error positions.
func LoadBytes(filename string, data []byte) (*Config, error) {
	if err := Validate(filename, data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	cfg.applyDefaults()

	if _, ok := cfg.Networks[cfg.Network]; !ok {
		return nil, fmt.Errorf("config %s: network %q has no endpoints configured", filename, cfg.Network)
	}
	return &cfg, nil
}

// Validate checks configuration data against the embedded CUE schema
// without decoding it. Returns *ValidationError on schema violations.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup #Config: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &ValidationError{File: filename, Details: cueerrors.Details(err, nil)}
	}
	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return &ValidationError{File: filename, Details: cueerrors.Details(err, nil)}
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{File: filename, Details: cueerrors.Details(err, nil)}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if len(c.Networks) == 0 {
		c.Networks = DefaultNetworks()
	}
	if c.PurgeAfterDays <= 0 {
		c.PurgeAfterDays = DefaultPurgeAfterDay
	}
}

// Endpoints returns the validator pool for the selected network.
func (c *Config) Endpoints() []validator.Endpoint {
	return c.Networks[c.Network]
}

// BreakerConfigs converts the breaker sections to domain configs. The
// ledger breaker is always present; omitted thresholds fall back to
// package defaults inside breaker.New.
func (c *Config) BreakerConfigs() map[string]breaker.Config {
	configs := make(map[string]breaker.Config, len(c.Breakers)+1)
	for name, section := range c.Breakers {
		configs[name] = breaker.Config{
			FailureThreshold: section.FailureThreshold,
			RecoveryTimeout:  secondsToDuration(section.RecoveryTimeoutSeconds),
			SuccessThreshold: section.SuccessThreshold,
		}
	}
	if _, ok := configs[LedgerDependency]; !ok {
		configs[LedgerDependency] = breaker.Config{}
	}
	return configs
}

// DataCapConfig converts the data cap section to the domain config.
func (c *Config) DataCapConfig() datacap.Config {
	return datacap.Config{
		MaxQueueSize: c.DataCap.MaxQueueSize,
		MaxStorageMB: c.DataCap.MaxStorageMB,
	}
}

// SyncerConfig converts the syncer section to the domain config.
// AutoRetry defaults to true: the driver re-queues eligible failures
// unless the operator turns it off.
func (c *Config) SyncerConfig() syncer.Config {
	autoRetry := true
	if c.Syncer.AutoRetry != nil {
		autoRetry = *c.Syncer.AutoRetry
	}
	return syncer.Config{
		BatchSize:      c.Syncer.BatchSize,
		MaxAttempts:    c.Syncer.MaxAttempts,
		AttemptTimeout: secondsToDuration(c.Syncer.AttemptTimeoutSeconds),
		Interval:       secondsToDuration(c.Syncer.IntervalSeconds),
		AutoRetry:      autoRetry,
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
