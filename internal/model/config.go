package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SMTPConfig holds the inbound mail listener settings.
type SMTPConfig struct {
	// Host is the address the SMTP listener binds to.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the SMTP listen port.
	Port int `mapstructure:"port" yaml:"port"`

	// Domain is the ingestion domain; mail is accepted only for
	// {username}@{Domain}.
	Domain string `mapstructure:"domain" yaml:"domain"`
}

// SyncConfig holds the mailbox polling settings.
type SyncConfig struct {
	// PollIntervalSec is how often (in seconds) all active accounts
	// are synced.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// FetchTimeoutSec bounds a single account's mailbox fetch.
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`

	// MaxMessages caps how many messages one fetch returns.
	MaxMessages int `mapstructure:"max_messages" yaml:"max_messages"`
}

// DatabaseConfig holds the SQLite database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/flight-tracker/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "flight-tracker", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		SMTP: SMTPConfig{
			Host: "0.0.0.0",
			Port: 2525,
		},
		Sync: SyncConfig{
			PollIntervalSec: 600,
			FetchTimeoutSec: 120,
			MaxMessages:     500,
		},
		Database: DatabaseConfig{
			Path: "flight-tracker.db",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("smtp.host", "0.0.0.0")
	v.SetDefault("smtp.port", 2525)
	v.SetDefault("sync.poll_interval_sec", 600)
	v.SetDefault("sync.fetch_timeout_sec", 120)
	v.SetDefault("sync.max_messages", 500)
	v.SetDefault("database.path", "flight-tracker.db")

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
