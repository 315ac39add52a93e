package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/debt-bridge/internal/task"
	"github.com/atmx/debt-bridge/internal/wad"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "LOG_FILE"} {
		t.Setenv(k, "")
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("testdata", "server.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/log/debt-bridge/server.log", cfg.LogFile)
	assert.Equal(t, uint64(10), cfg.Engine.SuccessSharePercent)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	require.Len(t, cfg.Venues, 2)
	require.Len(t, cfg.Sources, 2)

	parts, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"compound", "maker"}, parts.Venues.Names())
	assert.Equal(t, 0, parts.MinStake.Cmp(wad.MustParse("2.5")))

	sources := parts.Pool.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "dydx", sources[0].Name)
	assert.Equal(t, 0, sources[0].Capacity.Cmp(wad.MustParse("500000")))
	assert.Equal(t, uint64(3_605_500), sources[1].Cost.NewPosition)

	price, err := parts.Prices.Price(context.Background(), "ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, 0, price.Cmp(wad.MustParse("250.5")))

	m, err := parts.Venues.Market("compound:ETH-C")
	require.NoError(t, err)
	assert.Equal(t, 0, m.LiquidationRatio.Cmp(wad.MustParse("1.333333333333333333")))

	// Meter falls back to the defaults.
	assert.Equal(t, task.DefaultMeter(), parts.Engine.Meter)
	assert.Equal(t, uint64(10), parts.Engine.SuccessSharePercent)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("testdata", "server.toml"))
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Port)
	// Unset fields come from the defaults.
	assert.Equal(t, uint64(5), cfg.Engine.SuccessSharePercent)
	assert.Equal(t, 20, cfg.RateLimit.Burst)

	parts, err := cfg.Build()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000ef"), parts.Engine.Address)
	assert.Equal(t, uint64(90_000), parts.Engine.Meter.Base)
	assert.Equal(t, uint64(500_000), parts.Engine.Meter.Cost(task.KindOpen))
	assert.Equal(t, uint64(250_000), parts.Engine.Meter.Cost(task.KindDeposit))

	sources := parts.Pool.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "aave", sources[0].Name)
	assert.Equal(t, uint64(4_345_000), sources[0].Cost.Existing)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	require.Len(t, cfg.Sources, 4)
	assert.Equal(t, "dydx", cfg.Sources[0].Name)

	parts, err := cfg.Build()
	require.NoError(t, err)
	require.Contains(t, parts.Feeds, "ETH/USD")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(filepath.Join("testdata", "server.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "postgres://localhost/bridge", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		path string
	}{
		{"bad address", "bad_address.yaml"},
		{"price missing for market", "missing_price.yaml"},
		{"missing file", "nope.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(filepath.Join("testdata", tt.path))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join("testdata", "server.json"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "err = %v", err)
}

func TestValidate_RejectsBadAmounts(t *testing.T) {
	cfg := Default()
	cfg.Sources[0].Capacity = "-1"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.SuccessSharePercent = 101
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Prices["BTC/USD"] = "abc"
	assert.Error(t, cfg.Validate())
}
