// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for requests to the ClickUp API.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "clickup-tap/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// APIConfig holds the settings for talking to the ClickUp v2 API.
type APIConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the API root every stream path is appended to.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIToken is the personal or OAuth token sent in the Authorization header.
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// MaxPages caps the number of pages fetched per paginated request (default 1000).
	MaxPages int `json:"max_pages" yaml:"max_pages"`
}

// StoreConfig holds settings for the SQLite record sink.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables the sink.
	Path string `json:"path" yaml:"path"`
}

// TapConfig groups the settings of one extraction run.
type TapConfig struct {
	API APIConfig `json:"api" yaml:"api"`

	Store StoreConfig `json:"store" yaml:"store"`

	// Streams selects the streams to emit. Empty selects every stream.
	Streams []string `json:"streams,omitempty" yaml:"streams,omitempty"`

	// MetricsAddr is the listen address for the Prometheus endpoint. Empty disables it.
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`
}
