package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nft-trade-watcher", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "./data/nft_tracker.db", cfg.Storage.ConnectionString)

	assert.Equal(t, 30*time.Second, cfg.Polling.InstantInterval)
	assert.Equal(t, 10*time.Minute, cfg.Polling.TenMinInterval)
	assert.Equal(t, time.Hour, cfg.Polling.HourlyInterval)

	assert.Equal(t, 5, cfg.Gateway.WindowCalls)
	assert.Equal(t, time.Second, cfg.Gateway.Window)
	assert.Equal(t, 20, cfg.Gateway.GlobalCalls)
	assert.Equal(t, 60*time.Second, cfg.Gateway.GlobalWindow)

	assert.Equal(t, "https://api.opensea.io/api/v2", cfg.Marketplaces.OpenSeaAPIURL)
	assert.Equal(t, "https://api-mainnet.magiceden.dev/v2", cfg.Marketplaces.MagicEdenAPIURL)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "postgres://env", cfg.Storage.ConnectionString)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Defaults carry no bot token.
	cfg.Telegram.Token = ""
	assert.Error(t, cfg.Validate())

	cfg.Telegram.Token = "token"
	assert.NoError(t, cfg.Validate())

	cfg.Polling.InstantInterval = 0
	assert.Error(t, cfg.Validate())
}
