// Package config handles configuration loading and validation for shelter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/core/offline"
)

// Cache backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory"
)

// Connectivity probe modes.
const (
	ProbeTCP    = "tcp"
	ProbeHTTP   = "http"
	ProbeManual = "manual"
)

// Notification platforms.
const (
	PlatformTerminal = "terminal"
	PlatformDesktop  = "desktop"
	PlatformKafka    = "kafka"
	PlatformNone     = "none"
)

var (
	backends  = []string{BackendFile, BackendSQLite, BackendPostgres, BackendMySQL, BackendMemory}
	probes    = []string{ProbeTCP, ProbeHTTP, ProbeManual}
	platforms = []string{PlatformTerminal, PlatformDesktop, PlatformKafka, PlatformNone}
)

// Config holds the application configuration.
type Config struct {
	Cache         CacheConfig         `yaml:"cache"`
	Connectivity  ConnectivityConfig  `yaml:"connectivity"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Server        ServerConfig        `yaml:"server"`
	DataDir       string              `yaml:"-"` // set by caller, not from config file
}

// CacheConfig selects where the offline cache document is stored.
type CacheConfig struct {
	Namespace  string `yaml:"namespace"`
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`         // sqlite path or server DSN
	QuotaBytes int    `yaml:"quota_bytes"` // file and memory backends; 0 = unlimited
}

// ConnectivityConfig configures how online/offline is detected.
type ConnectivityConfig struct {
	Probe          string        `yaml:"probe"`
	Targets        []string      `yaml:"targets"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	OfflineMessage string        `yaml:"offline_message"`
	OnlineMessage  string        `yaml:"online_message"`
}

// NotificationsConfig selects the notification platform.
type NotificationsConfig struct {
	Platform string      `yaml:"platform"`
	Icon     string      `yaml:"icon"`
	Badge    string      `yaml:"badge"`
	Kafka    KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the push relay.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Namespace:  offline.DefaultNamespace,
			Backend:    BackendFile,
			QuotaBytes: 5 * 1024 * 1024,
		},
		Connectivity: ConnectivityConfig{
			Probe:          ProbeTCP,
			Targets:        []string{"1.1.1.1:53", "8.8.8.8:53"},
			Interval:       10 * time.Second,
			Timeout:        3 * time.Second,
			OfflineMessage: connectivity.DefaultOfflineMessage,
			OnlineMessage:  connectivity.DefaultOnlineMessage,
		},
		Notifications: NotificationsConfig{
			Platform: PlatformTerminal,
			Icon:     "/icons/shelter-192.png",
			Badge:    "/icons/badge-72.png",
			Kafka: KafkaConfig{
				Topic: "shelter-notifications",
			},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Cache.Namespace == "" {
		c.Cache.Namespace = defaults.Cache.Namespace
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaults.Cache.Backend
	}
	if c.Connectivity.Probe == "" {
		c.Connectivity.Probe = defaults.Connectivity.Probe
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = defaults.Connectivity.Interval
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = defaults.Connectivity.Timeout
	}
	if c.Connectivity.OfflineMessage == "" {
		c.Connectivity.OfflineMessage = defaults.Connectivity.OfflineMessage
	}
	if c.Connectivity.OnlineMessage == "" {
		c.Connectivity.OnlineMessage = defaults.Connectivity.OnlineMessage
	}
	if c.Notifications.Platform == "" {
		c.Notifications.Platform = defaults.Notifications.Platform
	}
	if c.Notifications.Kafka.Topic == "" {
		c.Notifications.Kafka.Topic = defaults.Notifications.Kafka.Topic
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
}

// CacheFile returns the path of the file backend's document store.
func (c *Config) CacheFile() string {
	return filepath.Join(c.DataDir, "cache.json")
}

// SQLiteFile returns the sqlite database path, honoring an explicit dsn.
func (c *Config) SQLiteFile() string {
	if c.Cache.DSN != "" {
		return c.Cache.DSN
	}
	return filepath.Join(c.DataDir, "cache.db")
}

// StateFile returns the path of the file holding local state such as the
// notification permission.
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "state.json")
}

func oneOf(v string, allowed []string) bool {
	return slices.Contains(allowed, v)
}
