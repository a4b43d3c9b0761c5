package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sriram-PR/page-loader/pkg/utils"
)

const (
	DefaultUserAgent          = "page-loader/1.0"
	DefaultConcurrency        = 8
	DefaultMaxConcurrentPages = 2
	DefaultPageTimeout        = 60 * time.Second
	DefaultAssetTimeout       = 30 * time.Second
	DefaultMaxPageSizeBytes   = 20 << 20
	DefaultMaxAssetSizeBytes  = 50 << 20
	DefaultStateDir           = "./page_loader_state"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// Concurrency
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	} else if c.Concurrency < 0 {
		warnings = append(warnings, fmt.Sprintf("concurrency should be > 0, defaulting to %d", DefaultConcurrency))
		c.Concurrency = DefaultConcurrency
	}

	// MaxConcurrentPages
	if c.MaxConcurrentPages == 0 {
		c.MaxConcurrentPages = DefaultMaxConcurrentPages
	} else if c.MaxConcurrentPages < 0 {
		warnings = append(warnings, fmt.Sprintf("max_concurrent_pages should be > 0, defaulting to %d", DefaultMaxConcurrentPages))
		c.MaxConcurrentPages = DefaultMaxConcurrentPages
	}

	// DelayPerHost
	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, setting to 0")
		c.DelayPerHost = 0
	}

	// MaxRetries: an explicit initial_retry_delay with max_retries 0 disables retries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 2
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 500 * time.Millisecond
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 5 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// Timeouts
	if c.PageTimeout <= 0 {
		if c.PageTimeout < 0 {
			warnings = append(warnings, fmt.Sprintf("page_timeout cannot be negative, defaulting to %v", DefaultPageTimeout))
		}
		c.PageTimeout = DefaultPageTimeout
	}
	if c.AssetTimeout <= 0 {
		if c.AssetTimeout < 0 {
			warnings = append(warnings, fmt.Sprintf("asset_timeout cannot be negative, defaulting to %v", DefaultAssetTimeout))
		}
		c.AssetTimeout = DefaultAssetTimeout
	}

	// Size limits
	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = DefaultMaxPageSizeBytes
	}
	if c.MaxAssetSizeBytes < 0 {
		warnings = append(warnings, "max_asset_size_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxAssetSizeBytes = 0
	} else if c.MaxAssetSizeBytes == 0 {
		c.MaxAssetSizeBytes = DefaultMaxAssetSizeBytes
	}

	// StateDir
	if c.StateDir == "" {
		if c.RecordOutcomes {
			warnings = append(warnings, fmt.Sprintf("record_outcomes is true but state_dir is empty, defaulting to '%s'", DefaultStateDir))
		}
		c.StateDir = DefaultStateDir
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Range checks that defaults cannot repair
	if vErr := validator.New().Struct(c); vErr != nil {
		return warnings, fmt.Errorf("%w: %w", utils.ErrConfigValidation, vErr)
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		// One idle connection per asset worker; assets share the page origin
		h.MaxIdleConnsPerHost = max(c.Concurrency, 2)
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}
