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

// Package config loads the arena configuration.
//
// Configuration is read as YAML from a provider (file, Consul, etcd or
// ZooKeeper), environment references of the form ${VAR} and
// ${VAR:-default} are expanded, and the result is decoded into Config.
// A handful of A2A_* environment variables override file values.
//
// Example:
//
//	server:
//	  port: 9101
//	responder:
//	  url: ${A2A_WHITE_URL:-http://localhost:9100/a2a/step}
//	policy:
//	  allowed_domains: [example.org, localhost]
//	session:
//	  max_rounds: 15
//	tasks:
//	  file: data/tasks.yaml
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/arena/pkg/observability"
	"github.com/kadirpekel/arena/pkg/policy"
	"github.com/kadirpekel/arena/pkg/protocol"
	"github.com/kadirpekel/arena/pkg/recordstore"
	"github.com/kadirpekel/arena/pkg/relay"
	"github.com/kadirpekel/arena/pkg/session"
	"github.com/kadirpekel/arena/pkg/task"
)

// Defaults.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 9101
	DefaultResponderURL = "http://localhost:9100/a2a/step"
	DefaultWhitePort    = 9100

	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig         `yaml:"server,omitempty"`
	Responder     ResponderConfig      `yaml:"responder,omitempty"`
	Policy        PolicyConfig         `yaml:"policy,omitempty"`
	Session       SessionConfig        `yaml:"session,omitempty"`
	Tasks         TasksConfig          `yaml:"tasks,omitempty"`
	RecordStore   recordstore.Config   `yaml:"record_store,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
}

// ServerConfig configures the coordinator's HTTP server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// PublicURL is how other parties reach this server. Defaults to
	// http://localhost:<port>.
	PublicURL string `yaml:"public_url,omitempty"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RateLimitConfig is a per-client-IP token bucket.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// RequestsPerSecond is the refill rate. Default: 10
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Burst is the bucket size. Default: 20
	Burst int `yaml:"burst,omitempty"`
}

// ResponderConfig points at the white agent.
type ResponderConfig struct {
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// PolicyConfig is the proposal guardrail configuration.
type PolicyConfig struct {
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	MaxBodyBytes   int      `yaml:"max_body_bytes,omitempty"`
	AllowMethods   []string `yaml:"allow_methods,omitempty"`
}

// ProposalPolicy converts the configuration to a validator policy.
func (c PolicyConfig) ProposalPolicy() policy.ProposalPolicy {
	methods := make([]protocol.HTTPMethod, 0, len(c.AllowMethods))
	for _, m := range c.AllowMethods {
		methods = append(methods, protocol.HTTPMethod(strings.ToUpper(m)))
	}
	return policy.ProposalPolicy{
		AllowedDomains: append([]string(nil), c.AllowedDomains...),
		MaxBodyBytes:   c.MaxBodyBytes,
		AllowMethods:   methods,
	}
}

// SessionConfig controls the session engine.
type SessionConfig struct {
	MaxRounds int `yaml:"max_rounds,omitempty"`

	// Matching is "strict" (default) or "lenient".
	Matching string `yaml:"matching,omitempty"`

	// DecisionRetry answers a malformed decision with error feedback
	// instead of ending the session.
	DecisionRetry bool `yaml:"decision_retry,omitempty"`
}

// TasksConfig locates the task catalog.
type TasksConfig struct {
	// File is a YAML/JSON catalog or a JSONL dataset export. Empty means
	// the built-in fallback task.
	File  string `yaml:"file,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
}

// LoggerConfig configures logging.
//
// Priority order (highest to lowest): CLI flags, LOG_* environment
// variables, this section, defaults.
type LoggerConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level,omitempty"`

	// File is the log file path. Empty logs to stderr.
	File string `yaml:"file,omitempty"`

	// Format is "simple", "verbose" or "json". Default: simple
	Format string `yaml:"format,omitempty"`

	// Rotation settings for File.
	MaxSizeMB  int  `yaml:"max_size_mb,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty"`
	MaxAgeDays int  `yaml:"max_age_days,omitempty"`
	Compress   bool `yaml:"compress,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 10
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 20
	}

	if c.Responder.URL == "" {
		c.Responder.URL = DefaultResponderURL
	}
	if c.Responder.Timeout == 0 {
		c.Responder.Timeout = relay.DefaultTimeout
	}

	if c.Policy.AllowedDomains == nil {
		c.Policy.AllowedDomains = policy.DefaultAllowedDomains()
	}
	for i, d := range c.Policy.AllowedDomains {
		c.Policy.AllowedDomains[i] = strings.TrimSpace(d)
	}
	if c.Policy.MaxBodyBytes == 0 {
		c.Policy.MaxBodyBytes = policy.DefaultMaxBodyBytes
	}
	if c.Policy.AllowMethods == nil {
		for _, m := range policy.DefaultAllowMethods() {
			c.Policy.AllowMethods = append(c.Policy.AllowMethods, string(m))
		}
	}

	if c.Session.MaxRounds == 0 {
		c.Session.MaxRounds = session.DefaultMaxRounds
	}
	if c.Session.Matching == "" {
		c.Session.Matching = string(task.MatchStrict)
	}

	if c.Tasks.Limit == 0 {
		c.Tasks.Limit = task.DefaultLimit
	}

	c.RecordStore.SetDefaults()

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "simple"
	}
	if c.Logger.MaxSizeMB == 0 {
		c.Logger.MaxSizeMB = 100
	}

	c.Observability.SetDefaults()
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must be non-negative"))
	}
	if c.Responder.URL == "" {
		errs = append(errs, errors.New("responder.url is required"))
	}
	if c.Responder.Timeout < 0 {
		errs = append(errs, errors.New("responder.timeout must be non-negative"))
	}
	if c.Policy.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("policy.max_body_bytes must be non-negative"))
	}
	for _, m := range c.Policy.AllowMethods {
		if !protocol.HTTPMethod(strings.ToUpper(m)).Valid() {
			errs = append(errs, fmt.Errorf("policy.allow_methods: unsupported method %q", m))
		}
	}
	if c.Session.MaxRounds < 1 {
		errs = append(errs, errors.New("session.max_rounds must be at least 1"))
	}
	if _, err := task.ParseMatchMode(c.Session.Matching); err != nil {
		errs = append(errs, fmt.Errorf("session.matching: %w", err))
	}
	if c.Tasks.Limit < 0 {
		errs = append(errs, errors.New("tasks.limit must be non-negative"))
	}
	if err := c.RecordStore.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("record_store: %w", err))
	}
	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Logger.Level))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	return errors.Join(errs...)
}

// MatchMode returns the parsed task matching mode.
func (c *Config) MatchMode() task.MatchMode {
	mode, err := task.ParseMatchMode(c.Session.Matching)
	if err != nil {
		return task.MatchStrict
	}
	return mode
}

// SessionConfig returns the session engine configuration.
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.MaxRounds = c.Session.MaxRounds
	cfg.Policy = c.Policy.ProposalPolicy()
	cfg.DecisionRetry = c.Session.DecisionRetry
	return cfg
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
