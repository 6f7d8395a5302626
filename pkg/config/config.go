package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the bridge hub configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Chains     []ChainConfig    `mapstructure:"chains"`
	Protocols  []ProtocolConfig `mapstructure:"protocols"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	JWKS       JWKSConfig       `mapstructure:"jwks"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LedgerConfig selects and configures the token ledger backend
type LedgerConfig struct {
	// Backend is "memory" or "evm"
	Backend string          `mapstructure:"backend"`
	EVM     EVMLedgerConfig `mapstructure:"evm"`
}

// EVMLedgerConfig contains settings for the EVM-backed token ledger
type EVMLedgerConfig struct {
	BridgePrivateKey string           `mapstructure:"bridge_private_key"`
	Chains           []EVMChainConfig `mapstructure:"chains"`
}

// EVMChainConfig binds one chain id to an RPC endpoint and token contract
type EVMChainConfig struct {
	ChainID       uint64 `mapstructure:"chain_id"`
	RPCURL        string `mapstructure:"rpc_url"`
	TokenContract string `mapstructure:"token_contract"`
	GasLimit      uint64 `mapstructure:"gas_limit" default:"300000"`
	MaxGasPrice   string `mapstructure:"max_gas_price"`
}

// ChainConfig registers one ledger with the router
type ChainConfig struct {
	ID   uint64 `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// ProtocolConfig configures one bridge adapter. Trusted remotes are keyed
// by decimal chain id strings (viper map keys are always strings).
// Enabled is a pointer so an explicit `enabled: false` survives the
// post-unmarshal defaulting pass; use IsEnabled to read it.
type ProtocolConfig struct {
	Protocol       string            `mapstructure:"protocol"`
	Enabled        *bool             `mapstructure:"enabled" default:"true"`
	BaseFee        string            `mapstructure:"base_fee" default:"0.1"`
	FeeBps         int64             `mapstructure:"fee_bps" default:"10"`
	EstimatedTime  time.Duration     `mapstructure:"estimated_time" default:"5m"`
	SecurityLevel  int               `mapstructure:"security_level" default:"5"`
	MinAmount      string            `mapstructure:"min_amount" default:"1"`
	MaxAmount      string            `mapstructure:"max_amount" default:"1000000"`
	Chains         []uint64          `mapstructure:"chains"`
	TrustedRemotes map[string]string `mapstructure:"trusted_remotes"`
}

// IsEnabled reports whether the protocol should accept traffic. An unset
// flag means enabled.
func (p *ProtocolConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// RateLimitConfig contains sliding-window quota settings
type RateLimitConfig struct {
	WindowDuration time.Duration    `mapstructure:"window_duration"`
	BaseMaxTokens  string           `mapstructure:"base_max_tokens"`
	MaxTxPerWindow int              `mapstructure:"max_tx_per_window"`
	Tiers          map[string]int64 `mapstructure:"tiers"`
	ExemptAccounts []string         `mapstructure:"exempt_accounts"`
}

// OracleConfig contains supply oracle settings
type OracleConfig struct {
	RequiredSignatures     int           `mapstructure:"required_signatures"`
	ToleranceThreshold     string        `mapstructure:"tolerance_threshold"`
	ExpectedSupply         string        `mapstructure:"expected_supply"`
	ValidityPeriod         time.Duration `mapstructure:"validity_period"`
	ClockSkewTolerance     time.Duration `mapstructure:"clock_skew_tolerance"`
	ReconciliationInterval time.Duration `mapstructure:"reconciliation_interval"`
	Signers                []string      `mapstructure:"signers"`
}

// JWKSConfig contains JWKS configuration for JWT validation
type JWKSConfig struct {
	URL    string `mapstructure:"url"`
	Issuer string `mapstructure:"issuer"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// viper.SetDefault cannot reach per-entry list fields, so protocol and
	// EVM chain entries get their defaults from struct tags after unmarshal.
	for i := range config.Protocols {
		if err := defaults.Set(&config.Protocols[i]); err != nil {
			return nil, fmt.Errorf("failed to apply protocol defaults: %w", err)
		}
	}
	for i := range config.Ledger.EVM.Chains {
		if err := defaults.Set(&config.Ledger.EVM.Chains[i]); err != nil {
			return nil, fmt.Errorf("failed to apply evm chain defaults: %w", err)
		}
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", "bridge_hub")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_port", 9090)

	// Ledger defaults
	v.SetDefault("ledger.backend", "memory")

	// Rate limit defaults
	v.SetDefault("rate_limit.window_duration", "1h")
	v.SetDefault("rate_limit.base_max_tokens", "100000")
	v.SetDefault("rate_limit.max_tx_per_window", 10)
	v.SetDefault("rate_limit.tiers", map[string]int64{
		"standard":      10000,
		"silver":        20000,
		"gold":          50000,
		"institutional": 100000,
	})

	// Oracle defaults
	v.SetDefault("oracle.required_signatures", 3)
	v.SetDefault("oracle.tolerance_threshold", "1000")
	v.SetDefault("oracle.validity_period", "1h")
	v.SetDefault("oracle.clock_skew_tolerance", "5m")
	v.SetDefault("oracle.reconciliation_interval", "1h")

	// Shutdown defaults
	v.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if len(config.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	if len(config.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}
	for _, p := range config.Protocols {
		if p.Protocol == "" {
			return fmt.Errorf("protocols[].protocol is required")
		}
	}
	if config.Ledger.Backend != "memory" && config.Ledger.Backend != "evm" {
		return fmt.Errorf("ledger.backend must be memory or evm, got %q", config.Ledger.Backend)
	}
	if config.Ledger.Backend == "evm" && len(config.Ledger.EVM.Chains) == 0 {
		return fmt.Errorf("ledger.evm.chains is required for the evm backend")
	}
	if config.Oracle.RequiredSignatures < 1 {
		return fmt.Errorf("oracle.required_signatures must be at least 1")
	}
	if config.Oracle.ExpectedSupply == "" {
		return fmt.Errorf("oracle.expected_supply is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
