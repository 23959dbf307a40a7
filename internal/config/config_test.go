package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 5*time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.MaxPollDuration)
	assert.Equal(t, 5, cfg.Dispatch.MaxFetchFailures)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, "simulated", cfg.Telephony.ProviderName)
	assert.Equal(t, 16, cfg.Worker.MaxConcurrentCampaigns)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsRestProviderWithoutURL(t *testing.T) {
	cfg := &Config{Telephony: TelephonyConfig{ProviderName: "rest"}}
	cfg.ApplyDefaults()

	assert.Error(t, cfg.Validate())

	cfg.Telephony.BaseURL = "https://api.twilio.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{AISession: AISessionConfig{ProviderName: "carrier-pigeon"}}
	cfg.ApplyDefaults()

	assert.Error(t, cfg.Validate())
}

func TestLoadWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("app:\n  name: test\ndispatch:\n  poll_interval: 2s\n  max_attempts: 3\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("DIALER_DISPATCH_MAX_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 7, cfg.Dispatch.MaxAttempts)
}
