package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Listen is the address the HTTP API binds to.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path" yaml:"path"`
}

// SyncConfig holds all tunables for the ingestion engine.
type SyncConfig struct {
	// BatchSize is the fetch limit per batch for legacy/bulk imports.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// IncrementalBatchSize is the fetch limit per folder for the
	// scheduled incremental sync. Kept very small so each run stays
	// inside the execution-time ceiling.
	IncrementalBatchSize int `mapstructure:"incremental_batch_size" yaml:"incremental_batch_size"`

	// TimeBudgetMS is the wall-clock ceiling for one invocation.
	TimeBudgetMS int `mapstructure:"time_budget_ms" yaml:"time_budget_ms"`

	// MaxConcurrentMailboxes bounds how many mailboxes sync in parallel.
	MaxConcurrentMailboxes int `mapstructure:"max_concurrent_mailboxes" yaml:"max_concurrent_mailboxes"`

	// FetchChunkSize is how many messages one fetch round trip requests.
	FetchChunkSize int `mapstructure:"fetch_chunk_size" yaml:"fetch_chunk_size"`

	// OversizeThresholdBytes is the body size above which parsing is
	// deferred and the message is stored raw with needs_parsing set.
	OversizeThresholdBytes int `mapstructure:"oversize_threshold_bytes" yaml:"oversize_threshold_bytes"`

	// DefaultFolders are synced when a mailbox has no folder override.
	DefaultFolders []string `mapstructure:"default_folders" yaml:"default_folders"`

	// SentFolders are folder names whose messages are outgoing.
	SentFolders []string `mapstructure:"sent_folders" yaml:"sent_folders"`

	// InternalDomains is the organization's own domain set, used by the
	// carbon-copy deduplication rule.
	InternalDomains []string `mapstructure:"internal_domains" yaml:"internal_domains"`

	// PollIntervalSec is how often the built-in scheduler triggers an
	// incremental sync. Zero disables the scheduler.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailroom/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailroom", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Listen: ":8080"},
		Database: DatabaseConfig{Path: "mailroom.db"},
		Sync: SyncConfig{
			BatchSize:              50,
			IncrementalBatchSize:   1,
			TimeBudgetMS:           55000,
			MaxConcurrentMailboxes: 1,
			FetchChunkSize:         1,
			OversizeThresholdBytes: 100 * 1024,
			DefaultFolders:         []string{"INBOX", "INBOX.Sent"},
			SentFolders: []string{
				"Sent", "Sent Items", "Sent Mail", "Outbox", "Sent Messages",
			},
			PollIntervalSec: 60,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("database.path", "mailroom.db")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.incremental_batch_size", 1)
	v.SetDefault("sync.time_budget_ms", 55000)
	v.SetDefault("sync.max_concurrent_mailboxes", 1)
	v.SetDefault("sync.fetch_chunk_size", 1)
	v.SetDefault("sync.oversize_threshold_bytes", 100*1024)
	v.SetDefault("sync.default_folders", []string{"INBOX", "INBOX.Sent"})
	v.SetDefault("sync.sent_folders", []string{
		"Sent", "Sent Items", "Sent Mail", "Outbox", "Sent Messages",
	})
	v.SetDefault("sync.poll_interval_sec", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("database", cfg.Database)
	v.Set("sync", cfg.Sync)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
