package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration.
type Config struct {
	// Database is the path to the event log database.
	Database string `yaml:"database"`

	// Pending is the path to the pending-upload database. Defaults to
	// a sibling of Database.
	Pending string `yaml:"pending,omitempty"`

	// Remote is the path to the remote event table. Empty means sync
	// is not configured.
	Remote string `yaml:"remote,omitempty"`

	// User identifies the owner of rows in the remote table. Empty
	// means not authenticated.
	User string `yaml:"user,omitempty"`
}

// DefaultConfigPath returns ~/.grove.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grove.yaml"
	}
	return filepath.Join(home, ".grove.yaml")
}

// LoadConfig reads the config file at path, falling back to defaults
// when the file does not exist. An empty path means the default
// location.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Database == "" {
		cfg.Database = defaultDatabasePath()
	}
	if cfg.Pending == "" {
		cfg.Pending = cfg.Database + ".pending"
	}
	return cfg, nil
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "grove.db"
	}
	return filepath.Join(home, ".grove", "grove.db")
}
