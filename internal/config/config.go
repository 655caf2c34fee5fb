package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Topology TopologyConfig `mapstructure:"topology"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type TopologyConfig struct {
	// Root is the directory containing the compose file and any relative
	// bind mount sources.
	Root        string `mapstructure:"root"`
	ComposeFile string `mapstructure:"compose_file"`
}

type BackupConfig struct {
	Destination        string `mapstructure:"destination"`
	SchemeFile         string `mapstructure:"scheme_file"`
	MaxVersions        int    `mapstructure:"max_versions"`
	HelperImage        string `mapstructure:"helper_image"`
	StopTimeoutSeconds int    `mapstructure:"stop_timeout_seconds"`

	// Schedule is a cron expression. Empty means run once and exit.
	Schedule string `mapstructure:"schedule"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("app.name", "backupbot")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("topology.compose_file", "docker-compose.yaml")
	v.SetDefault("backup.max_versions", 5)
	v.SetDefault("backup.helper_image", "alpine:latest")
	v.SetDefault("backup.stop_timeout_seconds", 20)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Helper containers bind the destination into their mount namespace,
	// and docker binds must be absolute host paths.
	if !filepath.IsAbs(cfg.Backup.Destination) {
		abs, err := filepath.Abs(cfg.Backup.Destination)
		if err != nil {
			return nil, fmt.Errorf("invalid config: backup.destination: %w", err)
		}
		cfg.Backup.Destination = abs
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Topology.Root == "" {
		return fmt.Errorf("topology.root is required")
	}
	if c.Backup.Destination == "" {
		return fmt.Errorf("backup.destination is required")
	}
	if c.Backup.SchemeFile == "" {
		return fmt.Errorf("backup.scheme_file is required")
	}
	if c.Backup.MaxVersions < 1 {
		return fmt.Errorf("backup.max_versions must be at least 1")
	}
	if c.Backup.StopTimeoutSeconds < 1 {
		return fmt.Errorf("backup.stop_timeout_seconds must be at least 1")
	}
	return nil
}

// ComposePath is the resolved location of the compose file.
func (c *Config) ComposePath() string {
	if filepath.IsAbs(c.Topology.ComposeFile) {
		return c.Topology.ComposeFile
	}
	return filepath.Join(c.Topology.Root, c.Topology.ComposeFile)
}
