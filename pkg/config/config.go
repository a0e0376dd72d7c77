package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/goccy/go-yaml"
)

const (
	defaultPort             = 8080
	defaultMaxBodySize      = 1 * 1024 * 1024
	defaultRateRPS          = 200
	defaultRateBurst        = 400
	defaultMaxContentRunes  = 2000
	defaultHistoryPageSize  = 50
	defaultHistoryMaxPage   = 200
	defaultPresenceTTL      = 30 * time.Second
	defaultPresenceSweep    = 5 * time.Second
	defaultSubscriberBuffer = 256
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 25 * time.Second
	defaultSweeperCron      = "*/5 * * * *"
	defaultTelemetrySample  = 0.01
	defaultTelemetrySlow    = 200 * time.Millisecond
)

var (
	cfgMu      sync.RWMutex
	globalCfg  *Config
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetConfig installs the process-wide effective config.
func SetConfig(c *Config) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	globalCfg = c
}

// GetConfig returns the process-wide config, or a defaulted one if none was set.
func GetConfig() *Config {
	cfgMu.RLock()
	c := globalCfg
	cfgMu.RUnlock()
	if c != nil {
		return c
	}
	d := &Config{}
	_ = d.ApplyDefaults()
	return d
}

// SetRuntime sets the global runtime config.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

// GetBackendKeys returns a copy of backend API keys.
func GetBackendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := make(map[string]struct{})
	if runtimeCfg == nil {
		return out
	}
	for k := range runtimeCfg.BackendKeys {
		out[k] = struct{}{}
	}
	return out
}

// GetSigningKeys returns a copy of signing keys.
func GetSigningKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	out := make(map[string]struct{})
	if runtimeCfg == nil {
		return out
	}
	for k := range runtimeCfg.SigningKeys {
		out[k] = struct{}{}
	}
	return out
}

// RuntimeFromConfig derives the key sets used by signature verification.
func RuntimeFromConfig(c *Config) *RuntimeConfig {
	rc := &RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range c.Server.APIKeys.Backend {
		rc.BackendKeys[k] = struct{}{}
		rc.SigningKeys[k] = struct{}{}
	}
	return rc
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig parses YAML config bytes.
func ParseConfig(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills missing values and validates the ones that were set.
func (c *Config) ApplyDefaults() error {
	if c.Server.MaxBodySize <= 0 {
		c.Server.MaxBodySize = SizeBytes(defaultMaxBodySize)
	}
	if c.Server.RateLimit.RPS <= 0 {
		c.Server.RateLimit.RPS = defaultRateRPS
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = defaultRateBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	ch := &c.Chat
	if ch.MaxContentRunes <= 0 {
		ch.MaxContentRunes = defaultMaxContentRunes
	}
	if ch.HistoryPageSize <= 0 {
		ch.HistoryPageSize = defaultHistoryPageSize
	}
	if ch.HistoryMaxPage <= 0 {
		ch.HistoryMaxPage = defaultHistoryMaxPage
	}
	if ch.HistoryPageSize > ch.HistoryMaxPage {
		return fmt.Errorf("chat.history_page_size %d exceeds chat.history_max_page %d", ch.HistoryPageSize, ch.HistoryMaxPage)
	}
	if ch.PresenceTTL.Duration() == 0 {
		ch.PresenceTTL = Duration(defaultPresenceTTL)
	}
	if ch.PresenceSweep.Duration() == 0 {
		ch.PresenceSweep = Duration(defaultPresenceSweep)
	}
	if ch.SubscriberBuffer <= 0 {
		ch.SubscriberBuffer = defaultSubscriberBuffer
	}
	if ch.WriteTimeout.Duration() == 0 {
		ch.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if ch.PingInterval.Duration() == 0 {
		ch.PingInterval = Duration(defaultPingInterval)
	}

	if c.Sweeper.Cron == "" {
		c.Sweeper.Cron = defaultSweeperCron
	}
	if !gronx.IsValid(c.Sweeper.Cron) {
		return fmt.Errorf("invalid sweeper cron expression: %s", c.Sweeper.Cron)
	}

	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = defaultTelemetrySample
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate)
	}
	if c.Telemetry.SlowThreshold.Duration() == 0 {
		c.Telemetry.SlowThreshold = Duration(defaultTelemetrySlow)
	}
	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("GROUPCHAT_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
