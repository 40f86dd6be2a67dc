// Package config loads the YAML configuration of the ledger server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chainproof-ledger/internal/domain"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config captures runtime configuration for the ledger server.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	MetricsAddress string          `yaml:"metrics_listen"`
	Program        ProgramConfig   `yaml:"program"`
	Params         ParamsConfig    `yaml:"params"`
	Storage        StorageConfig   `yaml:"storage"`
	Solana         SolanaConfig    `yaml:"solana"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
	Auth           AuthConfig      `yaml:"auth"`
	Logging        LoggingConfig   `yaml:"logging"`
	// Faucet mints stake tokens on request. It is meant for local and test
	// networks only; set FaucetOperator to limit it to one signer.
	Faucet         bool   `yaml:"faucet"`
	FaucetOperator string `yaml:"faucet_operator"`
}

// ProgramConfig identifies the deployed program and its token ids.
type ProgramConfig struct {
	ProgramID              string `yaml:"program_id"`
	StakeMint              string `yaml:"stake_mint"`
	TokenProgramID         string `yaml:"token_program_id"`
	AssociatedTokenProgram string `yaml:"associated_token_program_id"`
}

// ParamsConfig tunes the staking and reward rules.
type ParamsConfig struct {
	VerificationThreshold uint64   `yaml:"verification_threshold"`
	UnstakeCooldown       Duration `yaml:"unstake_cooldown"`
	DeveloperReferralCode string   `yaml:"developer_referral_code"`
	DistributionInterval  Duration `yaml:"distribution_interval"`
	DeveloperShareBps     uint16   `yaml:"developer_share_bps"`
	UserShareBps          uint16   `yaml:"user_share_bps"`
}

// StorageConfig selects the account store and optional event sinks.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
	Migrate          bool   `yaml:"migrate"`
	ClickHouseDSN    string `yaml:"clickhouse_dsn"`
}

// SolanaConfig points the mirror at a cluster.
type SolanaConfig struct {
	RPCEndpoint  string   `yaml:"rpc_endpoint"`
	WSEndpoint   string   `yaml:"ws_endpoint"`
	Mirror       bool     `yaml:"mirror"`
	SyncInterval Duration `yaml:"sync_interval"`
}

// SchedulerConfig drives automatic reward distribution.
type SchedulerConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Operator      string   `yaml:"operator"`
	CheckInterval Duration `yaml:"check_interval"`
}

// AuthConfig controls request signature checks.
type AuthConfig struct {
	MaxSkew  Duration `yaml:"max_skew"`
	Disabled bool     `yaml:"disabled"`
}

// LoggingConfig controls log level, format and optional rotated file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Program.ProgramID == "" {
		cfg.Program.ProgramID = domain.ChainProofProgramID
	}
	if cfg.Program.StakeMint == "" {
		cfg.Program.StakeMint = domain.StakeTokenMint
	}
	if cfg.Program.TokenProgramID == "" {
		cfg.Program.TokenProgramID = domain.TokenProgramID
	}
	if cfg.Program.AssociatedTokenProgram == "" {
		cfg.Program.AssociatedTokenProgram = domain.AssociatedTokenProgramID
	}
	if cfg.Params.VerificationThreshold == 0 {
		cfg.Params.VerificationThreshold = domain.VerificationThreshold
	}
	if cfg.Params.UnstakeCooldown.Duration == 0 {
		cfg.Params.UnstakeCooldown.Duration = time.Duration(domain.UnstakeCooldownSeconds) * time.Second
	}
	if cfg.Params.DeveloperReferralCode == "" {
		cfg.Params.DeveloperReferralCode = domain.DeveloperReferralCode
	}
	if cfg.Params.DistributionInterval.Duration == 0 {
		cfg.Params.DistributionInterval.Duration = time.Duration(domain.DistributionIntervalSeconds) * time.Second
	}
	if cfg.Params.DeveloperShareBps == 0 && cfg.Params.UserShareBps == 0 {
		cfg.Params.DeveloperShareBps = domain.DeveloperShareBps
		cfg.Params.UserShareBps = domain.UserShareBps
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Storage.PostgresMaxConns <= 0 {
		cfg.Storage.PostgresMaxConns = 10
	}
	if cfg.Solana.RPCEndpoint == "" {
		cfg.Solana.RPCEndpoint = "https://api.devnet.solana.com"
	}
	if cfg.Solana.SyncInterval.Duration == 0 {
		cfg.Solana.SyncInterval.Duration = time.Minute
	}
	if cfg.Scheduler.CheckInterval.Duration == 0 {
		cfg.Scheduler.CheckInterval.Duration = time.Minute
	}
	if cfg.Auth.MaxSkew.Duration == 0 {
		cfg.Auth.MaxSkew.Duration = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

func validate(cfg Config) error {
	var errs []error
	for name, v := range map[string]string{
		"program.program_id":                  cfg.Program.ProgramID,
		"program.stake_mint":                  cfg.Program.StakeMint,
		"program.token_program_id":            cfg.Program.TokenProgramID,
		"program.associated_token_program_id": cfg.Program.AssociatedTokenProgram,
	} {
		if _, err := domain.ParseAddress(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	p := cfg.Params
	if sum := uint64(p.DeveloperShareBps) + uint64(p.UserShareBps); sum != domain.BpsDenominator {
		errs = append(errs, fmt.Errorf("params: developer_share_bps + user_share_bps = %d, want %d", sum, domain.BpsDenominator))
	}
	if p.UnstakeCooldown.Duration < time.Second || p.UnstakeCooldown.Duration%time.Second != 0 {
		errs = append(errs, fmt.Errorf("params.unstake_cooldown must be whole seconds, got %s", p.UnstakeCooldown.Duration))
	}
	if p.DistributionInterval.Duration < time.Second || p.DistributionInterval.Duration%time.Second != 0 {
		errs = append(errs, fmt.Errorf("params.distribution_interval must be whole seconds, got %s", p.DistributionInterval.Duration))
	}
	if len(p.DeveloperReferralCode) > domain.MaxReferralCodeLen {
		errs = append(errs, fmt.Errorf("params.developer_referral_code longer than %d bytes", domain.MaxReferralCodeLen))
	}

	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want %s or %s", cfg.Storage.Backend, BackendMemory, BackendPostgres))
	}

	if cfg.Solana.Mirror && cfg.Solana.WSEndpoint == "" {
		errs = append(errs, errors.New("solana.ws_endpoint is required when solana.mirror is set"))
	}
	if cfg.Scheduler.Enabled {
		if _, err := domain.ParseAddress(cfg.Scheduler.Operator); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.operator: %w", err))
		}
	}
	if cfg.FaucetOperator != "" {
		if _, err := domain.ParseAddress(cfg.FaucetOperator); err != nil {
			errs = append(errs, fmt.Errorf("faucet_operator: %w", err))
		}
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want json or text", cfg.Logging.Format))
	}
	return errors.Join(errs...)
}

// LedgerParams converts the params section into ledger parameters.
func (c Config) LedgerParams() domain.Params {
	return domain.Params{
		VerificationThreshold:       c.Params.VerificationThreshold,
		UnstakeCooldownSeconds:      int64(c.Params.UnstakeCooldown.Seconds()),
		DeveloperReferralCode:       c.Params.DeveloperReferralCode,
		DistributionIntervalSeconds: int64(c.Params.DistributionInterval.Seconds()),
		DeveloperShareBps:           c.Params.DeveloperShareBps,
		UserShareBps:                c.Params.UserShareBps,
	}
}

// Addresses are the parsed program ids. Valid only after a successful Load.
type Addresses struct {
	Program                domain.Address
	StakeMint              domain.Address
	TokenProgram           domain.Address
	AssociatedTokenProgram domain.Address
}

// ProgramAddresses parses the program section.
func (c Config) ProgramAddresses() (Addresses, error) {
	var (
		a   Addresses
		err error
	)
	if a.Program, err = domain.ParseAddress(c.Program.ProgramID); err != nil {
		return a, err
	}
	if a.StakeMint, err = domain.ParseAddress(c.Program.StakeMint); err != nil {
		return a, err
	}
	if a.TokenProgram, err = domain.ParseAddress(c.Program.TokenProgramID); err != nil {
		return a, err
	}
	if a.AssociatedTokenProgram, err = domain.ParseAddress(c.Program.AssociatedTokenProgram); err != nil {
		return a, err
	}
	return a, nil
}

// Validate checks a configuration built without Load, e.g. Default plus flag overrides.
func (c Config) Validate() error {
	return validate(c)
}
