// Package config loads bootstrap configuration from YAML, an optional .env
// file and environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain/evm"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// Network kinds.
const (
	KindMemory = "memory"
	KindEVM    = "evm"
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join("config", "bootstrap.yaml")

// NetworkConfig is a named target network.
type NetworkConfig struct {
	Kind   string `yaml:"kind"`
	RPCURL string `yaml:"rpc_url"`
	// Privileged networks accept direct balance assignment.
	Privileged bool `yaml:"privileged"`
	// FastFinality mines a block right after each submission.
	FastFinality bool `yaml:"fast_finality"`
	// RateLimit overrides rpc.rate_limit for this network when positive.
	RateLimit float64 `yaml:"rate_limit"`
}

// DeployerConfig selects the deployer identity. Address wins over
// AccountIndex.
type DeployerConfig struct {
	Address      string `yaml:"address" env:"BOOTSTRAP_DEPLOYER_ADDRESS"`
	AccountIndex int    `yaml:"account_index" env:"BOOTSTRAP_DEPLOYER_INDEX"`
	Label        string `yaml:"label" env:"BOOTSTRAP_DEPLOYER_LABEL"`
}

// AmountsConfig holds amounts in whole units as decimal strings.
type AmountsConfig struct {
	Decimals               int    `yaml:"decimals" env:"BOOTSTRAP_DECIMALS"`
	MoverNative            string `yaml:"mover_native" env:"BOOTSTRAP_MOVER_NATIVE"`
	MoverMint              string `yaml:"mover_mint" env:"BOOTSTRAP_MOVER_MINT"`
	DeployerMint           string `yaml:"deployer_mint" env:"BOOTSTRAP_DEPLOYER_MINT"`
	DeployerNative         string `yaml:"deployer_native" env:"BOOTSTRAP_DEPLOYER_NATIVE"`
	Approval               string `yaml:"approval" env:"BOOTSTRAP_APPROVAL"`
	InitialLiquidityToken  string `yaml:"initial_liquidity_token" env:"BOOTSTRAP_INITIAL_LIQUIDITY_TOKEN"`
	InitialLiquidityNative string `yaml:"initial_liquidity_native" env:"BOOTSTRAP_INITIAL_LIQUIDITY_NATIVE"`
}

// ArtifactsConfig locates compiled components.
type ArtifactsConfig struct {
	Dir string `yaml:"dir" env:"BOOTSTRAP_ARTIFACTS_DIR"`
	// Names overrides the artifact name per component kind.
	Names map[string]string `yaml:"names"`
}

// RPCConfig tunes the JSON-RPC client.
type RPCConfig struct {
	Timeout         time.Duration `yaml:"timeout" env:"BOOTSTRAP_RPC_TIMEOUT"`
	RateLimit       float64       `yaml:"rate_limit" env:"BOOTSTRAP_RPC_RATE_LIMIT"`
	Burst           int           `yaml:"burst" env:"BOOTSTRAP_RPC_BURST"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"BOOTSTRAP_RPC_BREAKER_FAILURES"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"BOOTSTRAP_RPC_BREAKER_COOLDOWN"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout" env:"BOOTSTRAP_CONFIRM_TIMEOUT"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"BOOTSTRAP_POLL_INTERVAL"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig controls the status listener.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"BOOTSTRAP_METRICS_ADDR"`
}

// Config is the complete bootstrap configuration.
type Config struct {
	Network string `yaml:"network" env:"BOOTSTRAP_NETWORK"`
	// RPCURL overrides the selected network's rpc_url.
	RPCURL   string                   `yaml:"rpc_url" env:"BOOTSTRAP_RPC_URL"`
	Networks map[string]NetworkConfig `yaml:"networks"`

	Deployer  DeployerConfig  `yaml:"deployer"`
	Amounts   AmountsConfig   `yaml:"amounts"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	RPC       RPCConfig       `yaml:"rpc"`
	Ledger    ledger.Options  `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DefaultNetworks returns the built-in network profiles.
func DefaultNetworks() map[string]NetworkConfig {
	return map[string]NetworkConfig{
		"memory": {
			Kind:         KindMemory,
			Privileged:   true,
			FastFinality: true,
		},
		"localhost": {
			Kind:         KindEVM,
			RPCURL:       "http://127.0.0.1:8545",
			Privileged:   true,
			FastFinality: true,
		},
		"hardhat": {
			Kind:         KindEVM,
			RPCURL:       "http://127.0.0.1:8545",
			Privileged:   true,
			FastFinality: true,
		},
		"sepolia": {
			Kind:      KindEVM,
			RPCURL:    "https://rpc.sepolia.org",
			RateLimit: 5,
		},
	}
}

// DefaultAmounts is the stock bootstrap profile in whole units.
func DefaultAmounts() AmountsConfig {
	return AmountsConfig{
		Decimals:               bootstrap.DefaultDecimals,
		MoverNative:            "10000000000000000000000",
		MoverMint:              "10000000000000000000000",
		DeployerMint:           "1000000000000",
		DeployerNative:         "100000000000",
		Approval:               "1000000000",
		InitialLiquidityToken:  "1000000000",
		InitialLiquidityNative: "1000000",
	}
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Network:  "localhost",
		Networks: DefaultNetworks(),
		Deployer: DeployerConfig{Label: "deployer"},
		Amounts:  DefaultAmounts(),
		Artifacts: ArtifactsConfig{
			Dir: "artifacts",
		},
		RPC: RPCConfig{
			Timeout:         30 * time.Second,
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
			ConfirmTimeout:  evm.DefaultConfirmTimeout,
			PollInterval:    evm.DefaultPollInterval,
		},
		Ledger:  ledger.Options{Backend: ledger.BackendFile, Path: filepath.Join("deployments", "ledger.json")},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFromPath reads a YAML file over the defaults. Networks named in the file
// replace built-in profiles of the same name and add new ones.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, bserr.New(bserr.KindInvalidConfig, "config.load", fmt.Errorf("read %s: %w", path, err))
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, bserr.New(bserr.KindInvalidConfig, "config.load", fmt.Errorf("parse %s: %w", path, err))
	}
	if cfg.Networks == nil {
		cfg.Networks = DefaultNetworks()
	}
	return cfg, nil
}

// LoadFromPathOrDefault is LoadFromPath that falls back to Default when the
// file does not exist.
func LoadFromPathOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return LoadFromPath(path)
}

// Load builds the effective configuration. An empty path tries DefaultPath
// and falls back to defaults; an explicit path must exist. envFile, when set,
// must exist; otherwise a .env in the working directory is loaded if present.
// Environment variables then override file values and the result is
// validated.
func Load(path, envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg, err = LoadFromPathOrDefault(DefaultPath)
	} else {
		cfg, err = LoadFromPath(path)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return bserr.New(bserr.KindInvalidConfig, "config.env", fmt.Errorf("load %s: %w", path, err))
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return bserr.New(bserr.KindInvalidConfig, "config.env", err)
	}
	return nil
}

// Validate checks the selected network and every section that is resolved
// at startup.
func (c *Config) Validate() error {
	if _, err := c.Profile(); err != nil {
		return err
	}
	if _, err := c.ResolveAmounts(); err != nil {
		return err
	}
	if _, err := c.ArtifactNames(); err != nil {
		return err
	}
	if c.Deployer.Address != "" {
		if _, err := chain.ParseAddress(c.Deployer.Address); err != nil {
			return bserr.New(bserr.KindInvalidConfig, "config.deployer", err)
		}
	}
	if c.Deployer.AccountIndex < 0 {
		return bserr.Newf(bserr.KindInvalidConfig, "config.deployer", "account_index must not be negative")
	}
	switch c.Ledger.Backend {
	case "", ledger.BackendMemory, ledger.BackendFile, ledger.BackendPostgres, ledger.BackendRedis:
	default:
		return bserr.Newf(bserr.KindInvalidConfig, "config.ledger", "unknown backend %q", c.Ledger.Backend)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return bserr.Newf(bserr.KindInvalidConfig, "config.logging", "unknown format %q", c.Logging.Format)
	}
	return nil
}

// NetworkNames returns the configured network names, sorted.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the selected network with the rpc_url override applied.
func (c *Config) Profile() (NetworkConfig, error) {
	n, ok := c.Networks[c.Network]
	if !ok {
		return NetworkConfig{}, bserr.Newf(bserr.KindInvalidConfig, "config.network",
			"unknown network %q (known: %s)", c.Network, strings.Join(c.NetworkNames(), ", "))
	}
	if c.RPCURL != "" {
		n.RPCURL = c.RPCURL
	}
	switch n.Kind {
	case KindMemory:
	case KindEVM:
		if n.RPCURL == "" {
			return NetworkConfig{}, bserr.Newf(bserr.KindInvalidConfig, "config.network", "network %q requires rpc_url", c.Network)
		}
	default:
		return NetworkConfig{}, bserr.Newf(bserr.KindInvalidConfig, "config.network", "network %q has unknown kind %q", c.Network, n.Kind)
	}
	return n, nil
}

// ResolveAmounts scales the whole-unit amounts to smallest units. Empty
// fields take the default profile.
func (c *Config) ResolveAmounts() (bootstrap.Amounts, error) {
	decimals := c.Amounts.Decimals
	if decimals < 0 || decimals > 77 {
		return bootstrap.Amounts{}, bserr.Newf(bserr.KindInvalidConfig, "config.amounts", "decimals %d out of range", decimals)
	}

	defaults := DefaultAmounts()
	fields := []struct {
		name     string
		value    string
		fallback string
	}{
		{"mover_native", c.Amounts.MoverNative, defaults.MoverNative},
		{"mover_mint", c.Amounts.MoverMint, defaults.MoverMint},
		{"deployer_mint", c.Amounts.DeployerMint, defaults.DeployerMint},
		{"deployer_native", c.Amounts.DeployerNative, defaults.DeployerNative},
		{"approval", c.Amounts.Approval, defaults.Approval},
		{"initial_liquidity_token", c.Amounts.InitialLiquidityToken, defaults.InitialLiquidityToken},
		{"initial_liquidity_native", c.Amounts.InitialLiquidityNative, defaults.InitialLiquidityNative},
	}

	var a bootstrap.Amounts
	targets := []**big.Int{
		&a.MoverNative, &a.MoverMint, &a.DeployerMint, &a.DeployerNative,
		&a.Approval, &a.InitialLiquidityToken, &a.InitialLiquidityNative,
	}
	for i, f := range fields {
		value := f.value
		if strings.TrimSpace(value) == "" {
			value = f.fallback
		}
		v, err := ParseUnits(value, decimals)
		if err != nil {
			return bootstrap.Amounts{}, bserr.New(bserr.KindInvalidConfig, "config.amounts", fmt.Errorf("%s: %w", f.name, err))
		}
		*targets[i] = v
	}
	return a, a.Validate()
}

// ParseUnits converts a whole-unit decimal string to smallest units. The
// value must be non-negative and carry no more fractional digits than
// decimals.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders smallest units as a whole-unit decimal string.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, int32(-decimals)).String()
}

// ArtifactNames returns per-kind artifact overrides keyed by component kind.
func (c *Config) ArtifactNames() (map[bootstrap.ComponentKind]string, error) {
	out := make(map[bootstrap.ComponentKind]string, len(c.Artifacts.Names))
	for key, name := range c.Artifacts.Names {
		kind, ok := parseKind(key)
		if !ok {
			return nil, bserr.Newf(bserr.KindInvalidConfig, "config.artifacts", "unknown component kind %q", key)
		}
		out[kind] = name
	}
	return out, nil
}

func parseKind(s string) (bootstrap.ComponentKind, bool) {
	for _, k := range bootstrap.ComponentKinds {
		if strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return "", false
}

// LoggerConfig returns the pkg/logger configuration.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{Level: c.Logging.Level, Format: c.Logging.Format}
}

// ClientConfig returns the JSON-RPC client configuration for profile n.
func (c *Config) ClientConfig(n NetworkConfig) evm.Config {
	limit := c.RPC.RateLimit
	if n.RateLimit > 0 {
		limit = n.RateLimit
	}
	return evm.Config{
		RPCURL:          n.RPCURL,
		Timeout:         c.RPC.Timeout,
		RateLimit:       limit,
		Burst:           c.RPC.Burst,
		BreakerFailures: c.RPC.BreakerFailures,
		BreakerCooldown: c.RPC.BreakerCooldown,
	}
}
