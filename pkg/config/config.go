// Package config handles runegraph configuration via YAML files and
// environment variables.
//
// Precedence, highest to lowest: environment variables (RUNEGRAPH_*),
// config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all runegraph configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the RPC listener settings.
type ServerConfig struct {
	// Address is the bind address of the RPC listener.
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig selects and parameterizes the storage engine.
type StorageConfig struct {
	// Engine is "memory" or "badger".
	Engine  string `yaml:"engine"`
	DataDir string `yaml:"data_dir"`
}

// QueryConfig holds the interpreter flags.
type QueryConfig struct {
	// CostPlanner enables cost-based plan search; else plans follow the
	// written left-to-right order.
	CostPlanner bool `yaml:"cost_planner"`
	// PlanCache enables caching compiled plans by stripped hash.
	PlanCache bool `yaml:"plan_cache"`
	// PlanCacheTTLSeconds bounds the age of cached plans.
	PlanCacheTTLSeconds int32 `yaml:"plan_cache_ttl"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is a logrus level name.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Address: "0.0.0.0", Port: 7654},
		Storage: StorageConfig{Engine: "memory", DataDir: "./data"},
		Query:   QueryConfig{CostPlanner: true, PlanCache: true, PlanCacheTTLSeconds: 60},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile reads path over the defaults. A missing path is not an
// error; the defaults stand.
func LoadFromFile(path string) (*Config, error) {
	c := Default()
	if path == "" {
		c.ApplyEnv()
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.ApplyEnv()
			return c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.ApplyEnv()
	return c, nil
}

// ApplyEnv overlays RUNEGRAPH_* environment variables.
func (c *Config) ApplyEnv() {
	envString("RUNEGRAPH_ADDRESS", &c.Server.Address)
	envInt("RUNEGRAPH_PORT", &c.Server.Port)
	envString("RUNEGRAPH_STORAGE_ENGINE", &c.Storage.Engine)
	envString("RUNEGRAPH_DATA_DIR", &c.Storage.DataDir)
	envBool("RUNEGRAPH_QUERY_COST_PLANNER", &c.Query.CostPlanner)
	envBool("RUNEGRAPH_QUERY_PLAN_CACHE", &c.Query.PlanCache)
	envInt32("RUNEGRAPH_QUERY_PLAN_CACHE_TTL", &c.Query.PlanCacheTTLSeconds)
	envString("RUNEGRAPH_LOG_LEVEL", &c.Logging.Level)
	envString("RUNEGRAPH_LOG_FORMAT", &c.Logging.Format)
}

// Validate rejects out-of-range values before startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Storage.Engine {
	case "memory", "badger":
	default:
		return fmt.Errorf("unknown storage engine: %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "badger" && c.Storage.DataDir == "" {
		return fmt.Errorf("badger engine needs a data directory")
	}
	if c.Query.PlanCache && c.Query.PlanCacheTTLSeconds <= 0 {
		return fmt.Errorf("plan cache ttl must be positive, got %d", c.Query.PlanCacheTTLSeconds)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	return nil
}

// PlanCacheTTL returns the TTL as a duration.
func (c *Config) PlanCacheTTL() time.Duration {
	return time.Duration(c.Query.PlanCacheTTLSeconds) * time.Second
}

// ListenAddr returns the host:port the RPC server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// String returns a loggable view without sensitive values.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Listen: %s, Engine: %s, CostPlanner: %v, PlanCache: %v/%ds}",
		c.ListenAddr(), c.Storage.Engine, c.Query.CostPlanner, c.Query.PlanCache, c.Query.PlanCacheTTLSeconds)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envInt32(key string, dst *int32) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(i)
		}
	}
}
