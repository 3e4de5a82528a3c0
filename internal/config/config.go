// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the medswitch routing
// core. It handles loading and parsing YAML configuration files and provides
// structured access to the model catalog, conversation limits, fallback
// chains, and ambient settings such as logging and state directories.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultModelID is used when no persisted selection exists and the
// configuration does not name a default.
const DefaultModelID = "gpt-4o-mini"

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogsDir is the directory for rotating log files when LoggingToFile is set.
	LogsDir string `yaml:"logs-dir"`

	// LogsMaxTotalSizeMB limits the size (in MB) of a single rotating log file.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb"`

	// StateDir is the directory for mutable state: the selection database and
	// the optional conversation archive.
	StateDir string `yaml:"state-dir"`

	// DefaultModel names the provider used for new sessions absent an
	// explicit override or a persisted selection.
	DefaultModel string `yaml:"default-model"`

	// SummaryModel names the fast, low-cost provider used for context
	// summaries during a model switch. Empty means use the default model.
	SummaryModel string `yaml:"summary-model"`

	// RequestTimeoutSeconds bounds every provider call. Exceeding it is
	// classified as a timeout failure.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds"`

	// StreamingEnabled is the global streaming control. When false the
	// executor uses the single-shot path even for stream-capable models.
	StreamingEnabled *bool `yaml:"streaming-enabled"`

	// Conversation holds the bounded session memory limits.
	Conversation ConversationConfig `yaml:"conversation"`

	// Fallback holds the retry bound and the static fallback chain.
	Fallback FallbackConfig `yaml:"fallback"`

	// Archive controls compressed archiving of evicted conversations.
	Archive ArchiveConfig `yaml:"archive"`

	// Tracing toggles the observability hook bus.
	Tracing bool `yaml:"tracing"`

	// Models is the immutable provider catalog, loaded once at startup.
	Models []ModelSpec `yaml:"models"`

	// PreferenceRules are optional expression rules applied as an extra
	// catalog filter, e.g. `Speed >= 4 && Privacy == "local"`.
	PreferenceRules []PreferenceRule `yaml:"preference-rules"`
}

// ConversationConfig bounds per-session memory.
type ConversationConfig struct {
	// MaxConversations caps the number of tracked sessions; the least
	// recently accessed session is evicted at capacity.
	MaxConversations int `yaml:"max-conversations"`
	// MaxMessagesPerConversation caps stored messages per session; the
	// oldest messages are trimmed first.
	MaxMessagesPerConversation int `yaml:"max-messages-per-conversation"`
	// TTLMinutes expires sessions untouched for longer than this.
	TTLMinutes int `yaml:"ttl-minutes"`
	// SummaryWindow is the number of trailing messages handed to the
	// switch coordinator for context transfer.
	SummaryWindow int `yaml:"summary-window"`
}

// TTL returns the conversation time-to-live as a duration.
func (c ConversationConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// FallbackConfig defines the bounded retry behavior on provider failure.
type FallbackConfig struct {
	// MaxRetries bounds fallback hops after the original attempt.
	MaxRetries int `yaml:"max-retries"`
	// Chain maps a model id to its designated fallback model id. The chain
	// must be acyclic; this is validated at load time.
	Chain map[string]string `yaml:"chain"`
}

// ArchiveConfig controls the compressed conversation audit archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ModelSpec is the YAML form of one catalog entry.
type ModelSpec struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Family          string   `yaml:"family"`
	ContextWindow   int      `yaml:"context-window"`
	Vision          bool     `yaml:"vision"`
	FunctionCalling bool     `yaml:"function-calling"`
	Streaming       bool     `yaml:"streaming"`
	Privacy         string   `yaml:"privacy"`
	CostPer1K       float64  `yaml:"cost-per-1k"`
	Speed           int      `yaml:"speed"`
	Accuracy        int      `yaml:"accuracy"`
	Languages       []string `yaml:"languages"`
	Specialties     []string `yaml:"specialties"`
	// RemoteName is the upstream model identifier; defaults to ID.
	RemoteName string `yaml:"remote-name"`
	// BaseURL is the provider endpoint for HTTP adapters.
	BaseURL string `yaml:"base-url"`
	// APIKeyEnv names the environment variable holding the credential for
	// this model's family. Empty means no credential is required.
	APIKeyEnv string `yaml:"api-key-env"`
}

// PreferenceRule is an optional expression-based catalog filter.
type PreferenceRule struct {
	Name string `yaml:"name"`
	When string `yaml:"when"`
}

// DefaultConfig returns a configuration with conservative clinical defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel:          DefaultModelID,
		RequestTimeoutSeconds: 30,
		StateDir:              ".medswitch",
		LogsDir:               ".medswitch/logs",
		Conversation: ConversationConfig{
			MaxConversations:           50,
			MaxMessagesPerConversation: 20,
			TTLMinutes:                 30,
			SummaryWindow:              10,
		},
		Fallback: FallbackConfig{
			MaxRetries: 2,
			Chain:      map[string]string{},
		},
	}
}

// LoadConfig reads, parses, and validates a YAML configuration file.
// A `.env` file alongside the process, when present, is loaded first so
// that api-key-env references resolve; its absence is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DefaultModel == "" {
		c.DefaultModel = d.DefaultModel
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.LogsDir == "" {
		c.LogsDir = d.LogsDir
	}
	if c.Conversation.MaxConversations <= 0 {
		c.Conversation.MaxConversations = d.Conversation.MaxConversations
	}
	if c.Conversation.MaxMessagesPerConversation <= 0 {
		c.Conversation.MaxMessagesPerConversation = d.Conversation.MaxMessagesPerConversation
	}
	if c.Conversation.TTLMinutes <= 0 {
		c.Conversation.TTLMinutes = d.Conversation.TTLMinutes
	}
	if c.Conversation.SummaryWindow <= 0 {
		c.Conversation.SummaryWindow = d.Conversation.SummaryWindow
	}
	if c.Fallback.MaxRetries <= 0 {
		c.Fallback.MaxRetries = d.Fallback.MaxRetries
	}
	if c.Fallback.Chain == nil {
		c.Fallback.Chain = map[string]string{}
	}
	for i := range c.Models {
		if c.Models[i].RemoteName == "" {
			c.Models[i].RemoteName = c.Models[i].ID
		}
	}
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Streaming reports whether streaming dispatch is globally enabled.
// The flag defaults to enabled when unset.
func (c *Config) Streaming() bool {
	if c.StreamingEnabled == nil {
		return true
	}
	return *c.StreamingEnabled
}

// Validate checks model uniqueness, privacy levels, and fallback chain
// integrity. The chain must reference known models and contain no cycles.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("config: model with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("config: duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		switch m.Privacy {
		case "", "cloud", "local", "encrypted":
		default:
			return fmt.Errorf("config: model %q has unknown privacy level %q", m.ID, m.Privacy)
		}
	}

	for from, to := range c.Fallback.Chain {
		if !seen[from] {
			return fmt.Errorf("config: fallback chain references unknown model %q", from)
		}
		if !seen[to] {
			return fmt.Errorf("config: fallback for %q references unknown model %q", from, to)
		}
		if from == to {
			return fmt.Errorf("config: fallback chain has self-loop at %q", from)
		}
	}
	if err := validateAcyclic(c.Fallback.Chain); err != nil {
		return err
	}
	return nil
}

// validateAcyclic walks every chain start and fails on any revisit.
// The walk is bounded by the chain length, so it terminates even on
// malformed input.
func validateAcyclic(chain map[string]string) error {
	for start := range chain {
		visited := map[string]bool{start: true}
		current := start
		for i := 0; i <= len(chain); i++ {
			next, ok := chain[current]
			if !ok {
				break
			}
			if visited[next] {
				return fmt.Errorf("config: fallback chain cycle detected through %q", next)
			}
			visited[next] = true
			current = next
		}
	}
	return nil
}
