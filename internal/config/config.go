// Package config loads tool settings from YAML with .env and environment
// overrides. Every field has a default matching the stock app bundle, so a
// missing config file is not an error.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// Bundle is the installed application bundle.
		Bundle string `yaml:"bundle"`
		// ProcessName is what gets terminated before install.
		ProcessName string `yaml:"process_name"`
	} `yaml:"app"`

	Paths struct {
		// Extracted is the working copy of the unpacked archive.
		Extracted string `yaml:"extracted"`
		// Backup is where the pristine archive is kept.
		Backup string `yaml:"backup"`
		// ChunksDir is the chunk directory inside the extracted tree.
		ChunksDir string `yaml:"chunks_dir"`
		// AgentFactory is the fixed path of the agent factory module.
		AgentFactory string `yaml:"agent_factory"`
		// Database is the run-ledger location.
		Database string `yaml:"database"`
	} `yaml:"paths"`

	// Timeouts are in seconds to keep the YAML plain.
	Timeouts struct {
		Command int `yaml:"command_seconds"`
		Pack    int `yaml:"pack_seconds"`
	} `yaml:"timeouts"`
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Timeouts.Command) * time.Second
}

func (c *Config) PackTimeout() time.Duration {
	return time.Duration(c.Timeouts.Pack) * time.Second
}

// Default returns the configuration for a stock install.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Bundle = "/Applications/Intent by Augment.app"
	cfg.App.ProcessName = "Intent by Augment"
	cfg.Paths.Extracted = "extracted"
	cfg.Paths.Backup = "app.asar.backup"
	cfg.Paths.ChunksDir = "dist/renderer/app/immutable/chunks"
	cfg.Paths.AgentFactory = "dist/features/agent/services/agent-factory.js"
	cfg.Paths.Database = "autopatch.db"
	cfg.Timeouts.Command = 120
	cfg.Timeouts.Pack = 300
	return cfg
}

// Load reads the YAML config at path over the defaults. An empty path or a
// missing file keeps the defaults. Environment variables win over both.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	}

	if bundle := os.Getenv("AUTOPATCH_APP_BUNDLE"); bundle != "" {
		cfg.App.Bundle = bundle
	}
	if extracted := os.Getenv("AUTOPATCH_EXTRACTED"); extracted != "" {
		cfg.Paths.Extracted = extracted
	}
	if db := os.Getenv("AUTOPATCH_DB"); db != "" {
		cfg.Paths.Database = db
	}

	return cfg, nil
}

// Resources returns the Resources directory inside the app bundle.
func (c *Config) Resources() string {
	return filepath.Join(c.App.Bundle, "Contents", "Resources")
}

// Asar returns the packed archive path inside the app bundle.
func (c *Config) Asar() string {
	return filepath.Join(c.Resources(), "app.asar")
}

// Unpacked returns the native-module sidecar directory next to the archive.
func (c *Config) Unpacked() string {
	return filepath.Join(c.Resources(), "app.asar.unpacked")
}

// Plist returns the bundle's Info.plist path.
func (c *Config) Plist() string {
	return filepath.Join(c.App.Bundle, "Contents", "Info.plist")
}
