package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 18, cfg.Pawn.Decimals)
	assert.Equal(t, "pawn", cfg.Pawn.AddressPrefix)
	assert.Equal(t, "refund", cfg.Pawn.Settlement)
	assert.Equal(t, "15", cfg.Pawn.InitialPool)
	assert.Equal(t, time.Minute, cfg.Pawn.SweepInterval)
	assert.Equal(t, "pawn.transfers", cfg.Messaging.Kafka.TransfersTopic)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, 200*time.Millisecond, cfg.Database.SlowQuery)
	assert.False(t, cfg.Broadcast.Enabled)
	assert.Equal(t, "pawn:events", cfg.Broadcast.Channel)
}

func TestPawnSettingsFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pawn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pawn:
  decimals: 6
  address_prefix: Loan
  settlement: forfeit
  sweep_interval: 30s
`), 0o600))

	t.Setenv("PAWN_SETTINGS_FILE", path)
	t.Setenv("PAWN_DECIMALS", "9")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Pawn.Decimals)
	assert.Equal(t, "loan", cfg.Pawn.AddressPrefix)
	assert.Equal(t, "forfeit", cfg.Pawn.Settlement)
	assert.Equal(t, 30*time.Second, cfg.Pawn.SweepInterval)
	assert.Equal(t, "15", cfg.Pawn.InitialPool)
}

func TestNewRejectsBadPawnSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"settlement":  {"PAWN_SETTLEMENT": "lottery"},
		"prefix":      {"PAWN_ADDRESS_PREFIX": " "},
		"decimals":    {"PAWN_DECIMALS": "-1"},
		"settings":    {"PAWN_SETTINGS_FILE": "/nonexistent/pawn.yaml"},
		"cache":       {"CACHE_DRIVER": "memcached"},
		"http port":   {"HTTP_PORT": "0"},
		"kafka topic": {"KAFKA_TRANSFERS_TOPIC": ""},
		"broadcast":   {"BROADCAST_ENABLED": "true", "BROADCAST_CHANNEL": ""},
		"sample rate": {"OBS_TRACE_SAMPLE_RATIO": "1.5"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvAsStringSlice(t *testing.T) {
	t.Setenv("PAWN_TEST_BROKERS", " a:1, ,b:2 ")
	assert.Equal(t, []string{"a:1", "b:2"}, getEnvAsStringSlice("PAWN_TEST_BROKERS", nil))

	t.Setenv("PAWN_TEST_BROKERS", " , ")
	assert.Equal(t, []string{"x"}, getEnvAsStringSlice("PAWN_TEST_BROKERS", []string{"x"}))
}

func TestTypedGettersFallBackOnGarbage(t *testing.T) {
	t.Setenv("PAWN_TEST_INT", "twelve")
	t.Setenv("PAWN_TEST_RATIO", " 0.25 ")
	t.Setenv("PAWN_TEST_WAIT", "soon")

	assert.Equal(t, 7, getEnvAsInt("PAWN_TEST_INT", 7))
	assert.Equal(t, 0.25, getEnvAsFloat("PAWN_TEST_RATIO", 1))
	assert.Equal(t, time.Second, getEnvAsDuration("PAWN_TEST_WAIT", time.Second))
	assert.True(t, getEnvAsBool("PAWN_TEST_UNSET", true))
}
