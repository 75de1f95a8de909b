package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PayRunway/internal/config"
	"PayRunway/internal/funding"
	"PayRunway/internal/payments"
)

const sample = `
log_level: debug
network:
  name: mainnet
  epoch_duration: 30s
  floor_price: "0.1"
chain:
  rpc_url: https://rpc.example.org
  payments_address: "0x0000000000000000000000000000000000000001"
  token_address: "0x0000000000000000000000000000000000000002"
  storage_service_address: "0x0000000000000000000000000000000000000003"
database:
  driver: sqlite
  dsn: /tmp/payrunway.db
keeper:
  enabled: true
  address: "0x00000000000000000000000000000000000000a1"
  target_runway_days: 14
  deposit_ceiling: "25.5"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payrunway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mainnet", cfg.Network.Name)
	assert.Equal(t, 30*time.Second, cfg.Network.EpochDuration)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, "@every 15m", cfg.Keeper.Schedule)
	assert.Equal(t, "PAYRUNWAY_PRIVATE_KEY", cfg.Chain.PrivateKeyEnv)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", p.FloorPrice.String())
	assert.Equal(t, int64(payments.DefaultLockupDays), p.LockupDays)

	opts, err := cfg.KeeperOptions()
	require.NoError(t, err)
	assert.Equal(t, int64(14), *opts.TargetRunwayDays)
	assert.Equal(t, funding.ModeMinimum, opts.Mode)

	ceiling, err := cfg.DepositCeiling()
	require.NoError(t, err)
	assert.Equal(t, "25500000000000000000", ceiling.String())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "calibration", cfg.Network.Name)
	assert.Equal(t, "none", cfg.Database.Driver)

	ceiling, err := cfg.DepositCeiling()
	require.NoError(t, err)
	assert.Nil(t, ceiling)

	assert.Error(t, cfg.Validate(), "rpc url required")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAYRUNWAY_HTTP_ADDR", ":18080")
	t.Setenv("PAYRUNWAY_NATS_ENABLED", "true")
	t.Setenv("PAYRUNWAY_KEEPER_RUNWAY_DAYS", "60")
	t.Setenv("PAYRUNWAY_DATABASE_DRIVER", "postgres")

	cfg, err := config.Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":18080", cfg.Server.HTTPAddr)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, int64(60), cfg.Keeper.TargetRunwayDays)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_BadEnvFlag(t *testing.T) {
	t.Setenv("PAYRUNWAY_KEEPER_ENABLED", "sometimes")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "network: [unclosed"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"bad payments address", func(c *config.Config) { c.Chain.PaymentsAddress = "0x12" }},
		{"epoch not dividing a day", func(c *config.Config) { c.Network.EpochDuration = 7 * time.Second }},
		{"bad floor price", func(c *config.Config) { c.Network.FloorPrice = "cheap" }},
		{"floor price without digits", func(c *config.Config) { c.Network.FloorPrice = "." }},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "mysql" }},
		{"missing dsn", func(c *config.Config) { c.Database.DSN = "" }},
		{"bad keeper mode", func(c *config.Config) { c.Keeper.Mode = "aggressive" }},
		{"negative keeper days", func(c *config.Config) { c.Keeper.TargetRunwayDays = -1 }},
		{"bad keeper address", func(c *config.Config) { c.Keeper.Address = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, sample))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPrivateKey_FromNamedEnv(t *testing.T) {
	t.Setenv("MY_KEY", "abc123")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Chain.PrivateKeyEnv = "MY_KEY"
	assert.Equal(t, "abc123", cfg.PrivateKey())
}
