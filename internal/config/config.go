package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"PayRunway/internal/funding"
	pmath "PayRunway/internal/math"
	"PayRunway/internal/payments"
	"PayRunway/internal/persistence"
)

// Config holds all daemon configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Network struct {
		Name            string        `yaml:"name"`
		EpochDuration   time.Duration `yaml:"epoch_duration"`
		LockupDays      int64         `yaml:"lockup_days"`
		FloorPrice      string        `yaml:"floor_price"`
		FloorPeriodDays int64         `yaml:"floor_period_days"`
		SafetyMargin    time.Duration `yaml:"safety_margin"`
	} `yaml:"network"`

	Chain struct {
		RPCURL                string `yaml:"rpc_url"`
		PaymentsAddress       string `yaml:"payments_address"`
		TokenAddress          string `yaml:"token_address"`
		StorageServiceAddress string `yaml:"storage_service_address"`
		// PrivateKeyEnv names the environment variable holding the hex
		// signing key. The key itself never lives in the file.
		PrivateKeyEnv string `yaml:"private_key_env"`
		GasLimit      uint64 `yaml:"gas_limit"`
	} `yaml:"chain"`

	Server struct {
		GRPCAddr string `yaml:"grpc_addr"`
		HTTPAddr string `yaml:"http_addr"`
		// IdempotencyKeys is how many execution idempotency keys are remembered.
		IdempotencyKeys int `yaml:"idempotency_keys"`
	} `yaml:"server"`

	Database struct {
		// Driver is postgres, sqlite or none.
		Driver        string `yaml:"driver"`
		DSN           string `yaml:"dsn"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"database"`

	NATS struct {
		Enabled          bool          `yaml:"enabled"`
		URL              string        `yaml:"url"`
		StreamMaxAge     time.Duration `yaml:"stream_max_age"`
		ProjectorDurable string        `yaml:"projector_durable"`
	} `yaml:"nats"`

	Keeper struct {
		Enabled          bool          `yaml:"enabled"`
		Schedule         string        `yaml:"schedule"`
		Address          string        `yaml:"address"`
		TargetRunwayDays int64         `yaml:"target_runway_days"`
		Mode             string        `yaml:"mode"`
		DepositCeiling   string        `yaml:"deposit_ceiling"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"keeper"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PAYRUNWAY_LOG_LEVEL":          &c.LogLevel,
		"PAYRUNWAY_NETWORK":            &c.Network.Name,
		"PAYRUNWAY_RPC_URL":            &c.Chain.RPCURL,
		"PAYRUNWAY_PAYMENTS_ADDRESS":   &c.Chain.PaymentsAddress,
		"PAYRUNWAY_TOKEN_ADDRESS":      &c.Chain.TokenAddress,
		"PAYRUNWAY_SERVICE_ADDRESS":    &c.Chain.StorageServiceAddress,
		"PAYRUNWAY_GRPC_ADDR":          &c.Server.GRPCAddr,
		"PAYRUNWAY_HTTP_ADDR":          &c.Server.HTTPAddr,
		"PAYRUNWAY_DATABASE_DRIVER":    &c.Database.Driver,
		"PAYRUNWAY_DATABASE_URL":       &c.Database.DSN,
		"PAYRUNWAY_MIGRATIONS_DIR":     &c.Database.MigrationsDir,
		"PAYRUNWAY_NATS_URL":           &c.NATS.URL,
		"PAYRUNWAY_KEEPER_SCHEDULE":    &c.Keeper.Schedule,
		"PAYRUNWAY_KEEPER_ADDRESS":     &c.Keeper.Address,
		"PAYRUNWAY_KEEPER_MODE":        &c.Keeper.Mode,
		"PAYRUNWAY_KEEPER_DEPOSIT_CAP": &c.Keeper.DepositCeiling,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"PAYRUNWAY_NATS_ENABLED":   &c.NATS.Enabled,
		"PAYRUNWAY_KEEPER_ENABLED": &c.Keeper.Enabled,
	}
	for key, dst := range flags {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv("PAYRUNWAY_KEEPER_RUNWAY_DAYS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PAYRUNWAY_KEEPER_RUNWAY_DAYS: %w", err)
		}
		c.Keeper.TargetRunwayDays = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Network.Name == "" {
		c.Network.Name = "calibration"
	}
	if c.Network.EpochDuration == 0 {
		c.Network.EpochDuration = payments.DefaultEpochDuration
	}
	if c.Network.LockupDays == 0 {
		c.Network.LockupDays = payments.DefaultLockupDays
	}
	if c.Network.FloorPrice == "" {
		c.Network.FloorPrice = payments.DefaultFloorPrice
	}
	if c.Network.FloorPeriodDays == 0 {
		c.Network.FloorPeriodDays = payments.DefaultFloorPeriodDays
	}
	if c.Network.SafetyMargin == 0 {
		c.Network.SafetyMargin = payments.DefaultSafetyMargin
	}
	if c.Chain.PrivateKeyEnv == "" {
		c.Chain.PrivateKeyEnv = "PAYRUNWAY_PRIVATE_KEY"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":9090"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.IdempotencyKeys == 0 {
		c.Server.IdempotencyKeys = 4096
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "none"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.StreamMaxAge == 0 {
		c.NATS.StreamMaxAge = 30 * 24 * time.Hour
	}
	if c.NATS.ProjectorDurable == "" {
		c.NATS.ProjectorDurable = "payrunway-history"
	}
	if c.Keeper.Schedule == "" {
		c.Keeper.Schedule = "@every 15m"
	}
	if c.Keeper.Mode == "" {
		c.Keeper.Mode = string(funding.ModeMinimum)
	}
	if c.Keeper.TargetRunwayDays == 0 {
		c.Keeper.TargetRunwayDays = 30
	}
	if c.Keeper.Timeout == 0 {
		c.Keeper.Timeout = 2 * time.Minute
	}
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	for name, v := range map[string]string{
		"chain.payments_address":        c.Chain.PaymentsAddress,
		"chain.token_address":           c.Chain.TokenAddress,
		"chain.storage_service_address": c.Chain.StorageServiceAddress,
	} {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("%s must be a hex address, got %q", name, v)
		}
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "none":
	default:
		if _, err := persistence.ParseDialect(c.Database.Driver); err != nil {
			return fmt.Errorf("database.driver: %w", err)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	}
	if c.Keeper.Enabled {
		if _, err := c.KeeperOptions(); err != nil {
			return err
		}
		if !common.IsHexAddress(c.Keeper.Address) {
			return fmt.Errorf("keeper.address must be a hex address, got %q", c.Keeper.Address)
		}
	}
	return nil
}

// Params converts the network section into calculator parameters.
func (c *Config) Params() (payments.Params, error) {
	p := payments.DefaultParams()
	p.EpochDuration = c.Network.EpochDuration
	p.LockupDays = c.Network.LockupDays
	p.FloorPeriodDays = c.Network.FloorPeriodDays
	p.SafetyMargin = c.Network.SafetyMargin

	floor, err := pmath.ParseUnits(c.Network.FloorPrice, pmath.TokenDecimals)
	if err != nil {
		return payments.Params{}, fmt.Errorf("network.floor_price: %w", err)
	}
	p.FloorPrice = floor

	if err := p.Validate(); err != nil {
		return payments.Params{}, fmt.Errorf("network: %w", err)
	}
	return p, nil
}

// KeeperOptions is the keeper's funding target.
func (c *Config) KeeperOptions() (funding.Options, error) {
	mode, err := funding.ParseMode(c.Keeper.Mode)
	if err != nil {
		return funding.Options{}, fmt.Errorf("keeper.mode: %w", err)
	}
	days := c.Keeper.TargetRunwayDays
	opts := funding.Options{TargetRunwayDays: &days, Mode: mode}
	if _, err := opts.Resolve(); err != nil {
		return funding.Options{}, fmt.Errorf("keeper: %w", err)
	}
	return opts, nil
}

// DepositCeiling is the keeper's deposit cap in base units, nil when unset.
func (c *Config) DepositCeiling() (*big.Int, error) {
	if c.Keeper.DepositCeiling == "" {
		return nil, nil
	}
	v, err := pmath.ParseUnits(c.Keeper.DepositCeiling, pmath.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("keeper.deposit_ceiling: %w", err)
	}
	return v, nil
}

// PrivateKey reads the signing key from the configured environment variable.
// Empty means read-only.
func (c *Config) PrivateKey() string {
	return os.Getenv(c.Chain.PrivateKeyEnv)
}
