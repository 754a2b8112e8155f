package crew

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
)

// Routing script engines
const (
	EngineRisor = "risor"
	EngineExpr  = "expr"
)

// AgentConfig defines an agent implemented as a Risor script or a reply
// template. The script sees the workflow state as globals and returns the
// agent's reply. A supervisor script returns a map with "reply" and "next".
type AgentConfig struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script,omitempty"`
	// Reply is a template with ${...} expressions, used when Script is empty.
	Reply string `yaml:"reply,omitempty"`
}

// Config is the application configuration. Values come from defaults, then
// the YAML file, then CREW_* environment variables.
type Config struct {
	DataDir             string        `yaml:"data_dir" envconfig:"DATA_DIR"`
	Store               string        `yaml:"store" envconfig:"STORE"`
	PostgresDSN         string        `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	RecursionLimit      int           `yaml:"recursion_limit" envconfig:"RECURSION_LIMIT"`
	RetainCheckpoints   int           `yaml:"retain_checkpoints" envconfig:"RETAIN_CHECKPOINTS"`
	CompactInterval     time.Duration `yaml:"compact_interval" envconfig:"COMPACT_INTERVAL"`
	LogLevel            string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat           string        `yaml:"log_format" envconfig:"LOG_FORMAT"`
	EpisodicLearning    bool          `yaml:"episodic_learning" envconfig:"EPISODIC_LEARNING"`
	MaxEpisodicExamples int           `yaml:"max_episodic_examples" envconfig:"MAX_EPISODIC_EXAMPLES"`
	ActivityLog         bool          `yaml:"activity_log" envconfig:"ACTIVITY_LOG"`
	RoutingEngine       string        `yaml:"routing_engine" envconfig:"ROUTING_ENGINE"`

	// RoutingScript classifies a request; it sees the global request and
	// returns "plan" or "skip". RoutingEngine selects Risor or expr syntax.
	RoutingScript string        `yaml:"routing_script" envconfig:"-"`
	Agents        []AgentConfig `yaml:"agents" envconfig:"-"`
	Supervisor    *AgentConfig  `yaml:"supervisor" envconfig:"-"`
	Retry         *RetryConfig  `yaml:"retry" envconfig:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	dataDir := ".crew"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".crew")
	}
	return &Config{
		DataDir:             dataDir,
		Store:               StoreFile,
		RecursionLimit:      DefaultRecursionLimit,
		RetainCheckpoints:   10,
		CompactInterval:     time.Minute,
		LogLevel:            "info",
		LogFormat:           "text",
		MaxEpisodicExamples: 3,
		ActivityLog:         true,
		RoutingEngine:       EngineRisor,
	}
}

// LoadConfig loads configuration. A .env file in the working directory is
// loaded into the environment first. An empty path skips the YAML file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	}
	if err := envconfig.Process("CREW", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite, StorePebble:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir required")
	}
	if c.RecursionLimit < 0 {
		return fmt.Errorf("recursion_limit must not be negative")
	}
	seen := map[string]bool{}
	for _, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agent name required")
		}
		if seen[agent.Name] {
			return fmt.Errorf("duplicate agent %q", agent.Name)
		}
		if agent.Script == "" && agent.Reply == "" {
			return fmt.Errorf("agent %q needs a script or reply", agent.Name)
		}
		seen[agent.Name] = true
	}
	switch c.RoutingEngine {
	case "", EngineRisor, EngineExpr:
	default:
		return fmt.Errorf("unknown routing engine %q", c.RoutingEngine)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// RegistryPath is the thread registry file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "threads.json")
}

// CheckpointDir holds file, sqlite and pebble checkpoint data.
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

// AttachmentDir holds uploaded files.
func (c *Config) AttachmentDir() string {
	return filepath.Join(c.DataDir, "files")
}

// ActivityDir holds per-thread activity logs.
func (c *Config) ActivityDir() string {
	return filepath.Join(c.DataDir, "activity")
}
