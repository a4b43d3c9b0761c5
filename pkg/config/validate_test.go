package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/page-loader/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2, cfg.MaxConcurrentPages)
	assert.Equal(t, time.Duration(0), cfg.DelayPerHost)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 60*time.Second, cfg.PageTimeout)
	assert.Equal(t, 30*time.Second, cfg.AssetTimeout)
	assert.Equal(t, int64(20<<20), cfg.MaxPageSizeBytes)
	assert.Equal(t, int64(50<<20), cfg.MaxAssetSizeBytes)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.False(t, cfg.RespectRobotsTxt)
	assert.False(t, cfg.RecordOutcomes)

	// Check HTTP client defaults
	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 8, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 1*time.Second, cfg.HTTPClientSettings.ExpectContinueTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)
	assert.Equal(t, 10, cfg.HTTPClientSettings.MaxRedirects)
}

func TestAppConfig_Validate_KeepsExplicitValues(t *testing.T) {
	cfg := AppConfig{
		UserAgent:          "custom/2.0",
		Concurrency:        3,
		MaxConcurrentPages: 5,
		DelayPerHost:       100 * time.Millisecond,
		MaxRetries:         4,
		InitialRetryDelay:  2 * time.Second,
		MaxRetryDelay:      10 * time.Second,
		PageTimeout:        5 * time.Second,
		AssetTimeout:       2 * time.Second,
		MaxPageSizeBytes:   1024,
		MaxAssetSizeBytes:  2048,
		StateDir:           "/state",
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "custom/2.0", cfg.UserAgent)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 5, cfg.MaxConcurrentPages)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, int64(2048), cfg.MaxAssetSizeBytes)
	assert.Equal(t, "/state", cfg.StateDir)
	assert.Equal(t, 3, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
}

func TestAppConfig_Validate_NegativeValuesWarn(t *testing.T) {
	cfg := AppConfig{
		Concurrency:        -1,
		MaxConcurrentPages: -2,
		DelayPerHost:       -time.Second,
		MaxRetries:         -1,
		PageTimeout:        -time.Second,
		AssetTimeout:       -time.Second,
		MaxAssetSizeBytes:  -1,
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "concurrency should be > 0"))
	assert.True(t, containsWarning(warnings, "max_concurrent_pages should be > 0"))
	assert.True(t, containsWarning(warnings, "delay_per_host cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
	assert.True(t, containsWarning(warnings, "page_timeout cannot be negative"))
	assert.True(t, containsWarning(warnings, "asset_timeout cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_asset_size_bytes cannot be negative"))

	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, time.Duration(0), cfg.DelayPerHost)
	assert.Equal(t, int64(0), cfg.MaxAssetSizeBytes)
}

func TestAppConfig_Validate_RetriesDisabled(t *testing.T) {
	cfg := AppConfig{MaxRetries: 0, InitialRetryDelay: time.Millisecond}
	_, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
}

func TestAppConfig_Validate_InitialDelayCapped(t *testing.T) {
	cfg := AppConfig{MaxRetries: 2, InitialRetryDelay: 10 * time.Second, MaxRetryDelay: time.Second}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	assert.Equal(t, time.Second, cfg.InitialRetryDelay)
}

func TestAppConfig_Validate_RecordOutcomesWithoutStateDir(t *testing.T) {
	cfg := AppConfig{RecordOutcomes: true}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "record_outcomes is true"))
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
}

func TestAppConfig_Validate_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{"ConcurrencyTooHigh", AppConfig{Concurrency: 65}},
		{"PagesTooHigh", AppConfig{MaxConcurrentPages: 33}},
		{"RetriesTooHigh", AppConfig{MaxRetries: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrConfigValidation))
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}
