// Package config loads PACTS configuration from pacts.yaml with PACTS_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all PACTS configuration.
type Config struct {
	Name string `yaml:"name"`

	Browser  BrowserConfig  `yaml:"browser"`
	Profiles ProfilesConfig `yaml:"profiles"`
	Healing  HealingConfig  `yaml:"healing"`
	Cache    CacheConfig    `yaml:"cache"`
	Sentinel SentinelConfig `yaml:"sentinel"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrowserConfig configures the rod driver.
type BrowserConfig struct {
	Bin                 string   `yaml:"bin"`          // chrome binary; empty = rod default
	Launch              []string `yaml:"launch"`       // extra chrome flags
	DebuggerURL         string   `yaml:"debugger_url"` // attach instead of launch
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	StorageStateDir     string   `yaml:"storage_state_dir"`
	Stealth             bool     `yaml:"stealth"` // automation-fingerprint mitigations
}

// NavigationTimeout returns the navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ProfilesConfig configures STATIC/DYNAMIC detection and budgets.
type ProfilesConfig struct {
	StaticIdleMs        int               `yaml:"static_idle_ms"`        // default 2000
	DynamicIdleMs       int               `yaml:"dynamic_idle_ms"`       // default 5000
	SettleDelayMs       int               `yaml:"settle_delay_ms"`       // DYNAMIC post-load settle, default 1500
	StepBudgetMs        int               `yaml:"step_budget_ms"`        // per-step cap, default 30000
	ActionTimeoutMs     int               `yaml:"action_timeout_ms"`     // single action primitive, default 10000
	StaticDriftPercent  int               `yaml:"static_drift_percent"`  // default 35
	DynamicDriftPercent int               `yaml:"dynamic_drift_percent"` // default 72
	DynamicHosts        []string          `yaml:"dynamic_hosts"`         // force DYNAMIC per host
	ReadyHook           string            `yaml:"ready_hook"`            // window function name, optional
	SuccessTokens       map[string]string `yaml:"success_tokens"`        // host -> DOM success selector for SPA nav races
}

// HealingConfig bounds the healer.
type HealingConfig struct {
	MaxRounds      int `yaml:"max_rounds"`       // 0-5, default 3
	RevealBudgetMs int `yaml:"reveal_budget_ms"` // network-idle wait during reveal, default 1000
}

// CacheConfig configures the dual-tier selector memory.
type CacheConfig struct {
	DBPath        string `yaml:"db_path"`         // sqlite file, default .pacts/pacts.db
	FastTTLMs     int    `yaml:"fast_ttl_ms"`     // fast tier TTL, default 1h
	RedisAddr     string `yaml:"redis_addr"`      // optional shared fast tier
	SoftTTLDays   int    `yaml:"soft_ttl_days"`   // re-validation window, default 7
	ArtifactsDir  string `yaml:"artifacts_dir"`   // default .pacts/artifacts
}

// SentinelConfig configures the error-dialog sentinel.
type SentinelConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Keywords       []string `yaml:"keywords"`
	CloseSelectors []string `yaml:"close_selectors"`
}

// LoggingConfig controls categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Name: "pacts",
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			StorageStateDir:     ".pacts/state",
			Stealth:             true,
		},
		Profiles: ProfilesConfig{
			StaticIdleMs:        2000,
			DynamicIdleMs:       5000,
			SettleDelayMs:       1500,
			StepBudgetMs:        30000,
			ActionTimeoutMs:     10000,
			StaticDriftPercent:  35,
			DynamicDriftPercent: 72,
		},
		Healing: HealingConfig{
			MaxRounds:      3,
			RevealBudgetMs: 1000,
		},
		Cache: CacheConfig{
			DBPath:       ".pacts/pacts.db",
			FastTTLMs:    int(time.Hour / time.Millisecond),
			SoftTTLDays:  7,
			ArtifactsDir: ".pacts/artifacts",
		},
		Sentinel: SentinelConfig{
			Enabled: true,
			Keywords: []string{
				"required", "invalid", "duplicate", "must be",
				"cannot be", "error", "failed",
			},
			CloseSelectors: []string{
				`button[title="Close"]`,
				`button[aria-label="Close"]`,
				`.slds-modal__close`,
				`[data-dismiss="modal"]`,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layering it over defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks bounds the rest of the system assumes.
func (c *Config) Validate() error {
	if c.Healing.MaxRounds < 0 || c.Healing.MaxRounds > 5 {
		return fmt.Errorf("healing.max_rounds must be in [0,5], got %d", c.Healing.MaxRounds)
	}
	if c.Profiles.StaticDriftPercent <= 0 || c.Profiles.StaticDriftPercent > 100 {
		return fmt.Errorf("profiles.static_drift_percent must be in (0,100]")
	}
	if c.Profiles.DynamicDriftPercent <= 0 || c.Profiles.DynamicDriftPercent > 100 {
		return fmt.Errorf("profiles.dynamic_drift_percent must be in (0,100]")
	}
	return nil
}

// applyEnvOverrides lets PACTS_* variables win over file values.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("PACTS_HEADLESS"); v != "" {
		c.Browser.Headless = parseBool(v, c.Browser.Headless)
	}
	if v := os.Getenv("PACTS_STEALTH"); v != "" {
		c.Browser.Stealth = parseBool(v, c.Browser.Stealth)
	}
	if v := os.Getenv("PACTS_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("PACTS_DB_PATH"); v != "" {
		c.Cache.DBPath = v
	}
	if v := os.Getenv("PACTS_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("PACTS_MAX_HEAL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Healing.MaxRounds = n
		}
	}
	if v := os.Getenv("PACTS_DEBUG"); v != "" {
		c.Logging.DebugMode = parseBool(v, c.Logging.DebugMode)
	}
	if v := os.Getenv("PACTS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
