package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/skirmish/internal/catalog"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9339", cfg.TCPAddr)
	assert.Equal(t, StorageTypeMemory, cfg.StorageType)
	assert.True(t, cfg.CryptoEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, time.Hour, cfg.SearchTimeout())
	assert.Equal(t, 15*time.Second, cfg.HeartbeatWindow())
	assert.Equal(t, time.Second, cfg.ReaperInterval())
	assert.Nil(t, cfg.Events())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SKIRMISH_TCP_ADDR", "127.0.0.1:0")
	t.Setenv("SKIRMISH_STORAGE", "redis")
	t.Setenv("SKIRMISH_CRYPTO", "false")
	t.Setenv("SKIRMISH_SEARCH_TIMEOUT_SECONDS", "30")
	t.Setenv("SKIRMISH_EVENTS", "7,51,90")
	t.Setenv("SKIRMISH_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", cfg.TCPAddr)
	assert.Equal(t, StorageTypeRedis, cfg.StorageType)
	assert.False(t, cfg.CryptoEnabled)
	assert.Equal(t, 30*time.Second, cfg.SearchTimeout())
	assert.Equal(t, []catalog.Event{
		{Slot: 1, LocationID: 7},
		{Slot: 2, LocationID: 51},
		{Slot: 3, LocationID: 90},
	}, cfg.Events())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SKIRMISH_STORAGE", "postgres")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}
