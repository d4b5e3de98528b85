// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the HTTP API front.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty"`

	// Port to listen on.
	Port int `yaml:"port,omitempty"`

	// BearerToken is the single shared secret for /query and /sources.
	BearerToken string `yaml:"bearer_token,omitempty"`

	// Slack configures the chat-platform integration.
	Slack *SlackConfig `yaml:"slack,omitempty"`

	// RateLimitPerMin is the per-credential sliding-window limit.
	RateLimitPerMin int `yaml:"rate_limit_per_min,omitempty"`

	// RequestTimeout is the end-to-end deadline per request.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// TrustProxyHeaders enables X-Forwarded-For when identifying clients.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers,omitempty"`

	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`

	// MetricsEnabled exposes prometheus metrics at /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`
}

// SlackConfig configures slash-command handling.
type SlackConfig struct {
	// SigningSecret verifies X-Signature request signatures.
	SigningSecret string `yaml:"signing_secret"`

	// SignatureMaxAge rejects callbacks older than this window.
	SignatureMaxAge time.Duration `yaml:"signature_max_age,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RateLimitPerMin == 0 {
		c.RateLimitPerMin = 100
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.Slack != nil && c.Slack.SignatureMaxAge == 0 {
		c.Slack.SignatureMaxAge = 5 * time.Minute
	}
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RateLimitPerMin < 1 {
		return fmt.Errorf("rate_limit_per_min must be positive")
	}
	if c.Slack != nil && c.Slack.SigningSecret == "" {
		return fmt.Errorf("slack signing_secret is required when slack is configured")
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuditConfig configures the audit sinks.
type AuditConfig struct {
	// Dir is the directory audit streams are written to.
	Dir string `yaml:"dir,omitempty"`

	// MaxBytes rotates the compliance stream at this size.
	MaxBytes int64 `yaml:"max_bytes,omitempty"`

	// Backups is the number of rotated compliance files kept.
	Backups int `yaml:"backups,omitempty"`

	// DebugMaxBytes rotates the debug stream at this size.
	DebugMaxBytes int64 `yaml:"debug_max_bytes,omitempty"`

	// DebugBackups is the number of rotated debug files kept.
	DebugBackups int `yaml:"debug_backups,omitempty"`

	// QueueSize bounds the async writer queue per stream.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// SetDefaults applies default values.
func (c *AuditConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "./data/audit"
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	if c.Backups == 0 {
		c.Backups = 10
	}
	if c.DebugMaxBytes == 0 {
		c.DebugMaxBytes = 10 * 1024 * 1024
	}
	if c.DebugBackups == 0 {
		c.DebugBackups = 5
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
}

// Validate checks the configuration for errors.
func (c *AuditConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("audit dir is required")
	}
	if c.MaxBytes < 1 || c.DebugMaxBytes < 1 {
		return fmt.Errorf("rotation sizes must be positive")
	}
	if c.Backups < 0 || c.DebugBackups < 0 {
		return fmt.Errorf("backup counts cannot be negative")
	}
	return nil
}
