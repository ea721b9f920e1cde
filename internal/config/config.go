package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	DataDir      string        `yaml:"data_dir" json:"data_dir"`
	SeedExamples *bool         `yaml:"seed_examples" json:"seed_examples"`
	Storage      StorageConfig `yaml:"storage" json:"storage"`
	Search       SearchConfig  `yaml:"search" json:"search"`
	Timer        TimerConfig   `yaml:"timer" json:"timer"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend" json:"backend"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

type SearchConfig struct {
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms"`
}

type TimerConfig struct {
	TickMS int `yaml:"tick_ms" json:"tick_ms"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

func (s *StorageConfig) ApplyDefaults(dataDir string) {
	if s.Backend == "" {
		s.Backend = BackendFile
	}
	if s.SQLitePath == "" {
		s.SQLitePath = filepath.Join(dataDir, "tasks.db")
	}
}

func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:42069"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.SeedExamples == nil {
		seed := true
		c.SeedExamples = &seed
	}
	c.Storage.ApplyDefaults(c.DataDir)
	if c.Search.DebounceMS <= 0 {
		c.Search.DebounceMS = 300
	}
	if c.Timer.TickMS <= 0 {
		c.Timer.TickMS = 1000
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q: must be file, sqlite or memory", c.Storage.Backend)
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	return nil
}

func (c *Config) Seed() bool {
	return c.SeedExamples == nil || *c.SeedExamples
}

func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.Search.DebounceMS) * time.Millisecond
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickMS) * time.Millisecond
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// Load reads path, applies defaults and then environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var r Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	FromEnv(&r)
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
