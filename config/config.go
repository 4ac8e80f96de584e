// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"

	"github.com/alertcore/alertcore/tracing"
	"github.com/alertcore/alertcore/types"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

var (
	// DefaultConfig holds the values applied before a configuration file is
	// read.
	DefaultConfig = Config{
		DedupWindowMinutes:       5,
		MaxRetryAttempts:         3,
		RetryBackoffBaseMS:       500,
		RetryBackoffMaxMS:        30000,
		PerChannelTimeoutMS:      5000,
		HistoryRetentionDays:     30,
		ResolvedRetentionMinutes: 1440,
		MaintenanceInterval:      model.Duration(15 * time.Minute),
		Store:                    DefaultStoreConfig,
	}

	// DefaultStoreConfig keeps state in process memory.
	DefaultStoreConfig = StoreConfig{
		Type: StoreMemory,
	}
)

// Load parses the YAML input s into a Config.
func Load(s string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict([]byte(s), cfg); err != nil {
		return nil, err
	}
	// An empty document leaves UnmarshalYAML uncalled.
	if cfg.MaxRetryAttempts == 0 {
		*cfg = DefaultConfig
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	cfg.original = s
	return cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}

	cfg.resolveFilepaths(filepath.Dir(filename))
	return cfg, nil
}

func resolveFilepath(baseDir, fp string) string {
	if len(fp) > 0 && !filepath.IsAbs(fp) {
		return filepath.Join(baseDir, fp)
	}
	return fp
}

// resolveFilepaths joins all relative paths in a configuration
// with a given base directory.
func (c *Config) resolveFilepaths(baseDir string) {
	for i, tf := range c.Templates {
		c.Templates[i] = resolveFilepath(baseDir, tf)
	}
	if c.Store.Type == StoreSQLite {
		c.Store.Path = resolveFilepath(baseDir, c.Store.Path)
	}
	c.Tracing.SetDirectory(baseDir)
	for _, ch := range c.Channels {
		if ch.WebhookConfig != nil && ch.WebhookConfig.HTTPConfig != nil {
			ch.WebhookConfig.HTTPConfig.SetDirectory(baseDir)
		}
		if ch.TelegramConfig != nil && ch.TelegramConfig.HTTPConfig != nil {
			ch.TelegramConfig.HTTPConfig.SetDirectory(baseDir)
		}
		if ch.EmailConfig != nil {
			ch.EmailConfig.TLSConfig.SetDirectory(baseDir)
		}
	}
}

// Config is the top-level configuration of an alertcore instance.
type Config struct {
	// DedupWindowMinutes is both the deduplication window for repeated
	// events and the idempotence window for notifications.
	DedupWindowMinutes int `yaml:"dedup_window_minutes" json:"dedup_window_minutes"`
	// SeverityChannelMap overrides the default channel selection per
	// severity.
	SeverityChannelMap map[types.Severity][]string `yaml:"severity_channel_map,omitempty" json:"severity_channel_map,omitempty"`

	MaxRetryAttempts    int `yaml:"max_retry_attempts" json:"max_retry_attempts"`
	RetryBackoffBaseMS  int `yaml:"retry_backoff_base_ms" json:"retry_backoff_base_ms"`
	RetryBackoffMaxMS   int `yaml:"retry_backoff_max_ms" json:"retry_backoff_max_ms"`
	PerChannelTimeoutMS int `yaml:"per_channel_timeout_ms" json:"per_channel_timeout_ms"`

	HistoryRetentionDays     int            `yaml:"history_retention_days" json:"history_retention_days"`
	ResolvedRetentionMinutes int            `yaml:"resolved_retention_minutes" json:"resolved_retention_minutes"`
	MaintenanceInterval      model.Duration `yaml:"maintenance_interval" json:"maintenance_interval"`

	// VolatileLabels are excluded from fingerprinting.
	VolatileLabels []string `yaml:"volatile_labels,omitempty" json:"volatile_labels,omitempty"`
	// Templates are glob patterns of notification template files.
	Templates []string `yaml:"templates,omitempty" json:"templates,omitempty"`

	Store    StoreConfig      `yaml:"store" json:"store"`
	Tracing  tracing.Config   `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Channels []*ChannelConfig `yaml:"channels,omitempty" json:"channels,omitempty"`

	// original is the input from which the config was parsed.
	original string
}

func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<error creating config string: %s>", err)
	}
	return string(b)
}

// Original returns the raw input the configuration was parsed from.
func (c *Config) Original() string {
	return c.original
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.DedupWindowMinutes <= 0 {
		return errors.New("dedup_window_minutes must be positive")
	}
	if c.MaxRetryAttempts <= 0 {
		return errors.New("max_retry_attempts must be positive")
	}
	if c.RetryBackoffBaseMS <= 0 {
		return errors.New("retry_backoff_base_ms must be positive")
	}
	if c.RetryBackoffMaxMS < c.RetryBackoffBaseMS {
		return fmt.Errorf("retry_backoff_max_ms (%d) must not be less than retry_backoff_base_ms (%d)", c.RetryBackoffMaxMS, c.RetryBackoffBaseMS)
	}
	if c.PerChannelTimeoutMS <= 0 {
		return errors.New("per_channel_timeout_ms must be positive")
	}
	if c.HistoryRetentionDays <= 0 {
		return errors.New("history_retention_days must be positive")
	}
	if c.ResolvedRetentionMinutes <= 0 {
		return errors.New("resolved_retention_minutes must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		return errors.New("maintenance_interval must be positive")
	}
	for _, l := range c.VolatileLabels {
		if strings.TrimSpace(l) == "" {
			return errors.New("empty label in volatile_labels")
		}
		if model.LabelName(l) == model.AlertNameLabel {
			return fmt.Errorf("label %q cannot be volatile", l)
		}
	}

	ids := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if ch == nil {
			return errors.New("empty channel entry")
		}
		if _, ok := ids[ch.ID]; ok {
			return fmt.Errorf("channel %q is not unique", ch.ID)
		}
		ids[ch.ID] = struct{}{}
	}
	for sev, chs := range c.SeverityChannelMap {
		if !sev.Valid() {
			return fmt.Errorf("unknown severity %q in severity_channel_map", sev)
		}
		for _, id := range chs {
			if _, ok := ids[id]; !ok {
				return fmt.Errorf("undefined channel %q used in severity_channel_map[%s]", id, sev)
			}
		}
		if slices.Contains(chs, "") {
			return fmt.Errorf("empty channel id in severity_channel_map[%s]", sev)
		}
	}
	return nil
}

// DedupWindow returns the deduplication and idempotence window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMinutes) * time.Minute
}

// RetryBackoffBase returns the delay before the first retry.
func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMS) * time.Millisecond
}

// RetryBackoffMax caps the delay between retries.
func (c *Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxMS) * time.Millisecond
}

// PerChannelTimeout bounds a single delivery attempt.
func (c *Config) PerChannelTimeout() time.Duration {
	return time.Duration(c.PerChannelTimeoutMS) * time.Millisecond
}

// HistoryRetention is how long history records and notification attempts
// are kept.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// ResolvedRetention is how long resolved alerts stay in the store.
func (c *Config) ResolvedRetention() time.Duration {
	return time.Duration(c.ResolvedRetentionMinutes) * time.Minute
}

// StoreConfig selects the alert store backend.
type StoreConfig struct {
	Type string `yaml:"type" json:"type"`
	// Path is the database file for the sqlite backend.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *StoreConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultStoreConfig
	type plain StoreConfig
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}
	switch c.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.Path == "" {
			return errors.New("missing path for sqlite store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Type)
	}
	return nil
}
