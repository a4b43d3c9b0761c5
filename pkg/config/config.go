package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// AppConfig holds the application configuration for page downloads
type AppConfig struct {
	UserAgent          string           `yaml:"user_agent,omitempty" validate:"required"`
	Concurrency        int              `yaml:"concurrency,omitempty" validate:"min=1,max=64"`           // Asset download workers per page
	MaxConcurrentPages int              `yaml:"max_concurrent_pages,omitempty" validate:"min=1,max=32"` // Pages downloaded at once (batch runs, MCP jobs)
	DelayPerHost       time.Duration    `yaml:"delay_per_host,omitempty"`                               // Minimum spacing between requests to one host
	MaxRetries         int              `yaml:"max_retries,omitempty" validate:"min=0,max=10"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	PageTimeout        time.Duration    `yaml:"page_timeout,omitempty"`  // Bound on fetching the page itself
	AssetTimeout       time.Duration    `yaml:"asset_timeout,omitempty"` // Bound on each asset fetch+write
	MaxPageSizeBytes   int64            `yaml:"max_page_size_bytes,omitempty" validate:"min=0"`
	MaxAssetSizeBytes  int64            `yaml:"max_asset_size_bytes,omitempty" validate:"min=0"` // 0 = unlimited
	RespectRobotsTxt   bool             `yaml:"respect_robots_txt,omitempty"`
	RecordOutcomes     bool             `yaml:"record_outcomes,omitempty"` // Keep run history in StateDir
	StateDir           string           `yaml:"state_dir,omitempty"`
	WriteManifest      bool             `yaml:"write_manifest,omitempty"` // Write <page>.manifest.yaml next to each page
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// Load reads a YAML config file
// Unknown keys are rejected so that typos do not silently fall back to defaults
// An empty file yields a zero AppConfig; call Validate to apply defaults
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w: YAML: %w", utils.ErrParsing, err)
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied
func Default() *AppConfig {
	cfg := &AppConfig{}
	_, _ = cfg.Validate() // Zero config always validates
	return cfg
}
