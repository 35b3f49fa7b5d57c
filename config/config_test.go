package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"btc_usdt", "eth_usdt", "bnb_usdt", "sol_usdt", "xrp_usdt"}, cfg.Markets)
	assert.Equal(t, 1000, cfg.Book.DepthLimit)
	assert.Equal(t, 10*time.Second, cfg.Book.MergeInterval)
	assert.Equal(t, "1m", cfg.Candle.Interval)
	assert.Equal(t, 100, cfg.Candle.Window)
	assert.Equal(t, 2*time.Second, cfg.Stream.BackoffStep)
	assert.Equal(t, 10*time.Second, cfg.Stream.BackoffMax)
	assert.Equal(t, 5, cfg.Stream.MaxRetries)
	assert.False(t, cfg.Book.SequenceCheck)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MARKETS", "eth_btc,xmr_btc")
	t.Setenv("BOOK_MERGE_INTERVAL", "2s")
	t.Setenv("BOOK_STREAM_LEVELS", "10")
	t.Setenv("CANDLE_INTERVAL", "5m")
	t.Setenv("DEBUG", "true")
	defer func() { DebugMode = false }()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"eth_btc", "xmr_btc"}, cfg.Markets)
	assert.Equal(t, 2*time.Second, cfg.Book.MergeInterval)
	assert.Equal(t, 10, cfg.Book.StreamLevels)
	assert.Equal(t, "5m", cfg.Candle.Interval)
	assert.True(t, DebugMode)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CANDLE_WINDOW", "0")

	_, err := Load()
	assert.Error(t, err)
}
