package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STOCKROOM_"

// Storage backends
const (
	BackendBolt  = "bolt"
	BackendMongo = "mongo"
)

// Config is the stockroom configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Router     RouterConfig     `yaml:"router"`
	Events     EventsConfig     `yaml:"events"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the store backend
type StorageConfig struct {
	Backend        string        `yaml:"backend"`
	DataDir        string        `yaml:"data_dir"`
	MongoURI       string        `yaml:"mongo_uri"`
	GlobalDatabase string        `yaml:"global_database"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// RouterConfig tunes tenant handle caching
type RouterConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxOpen       int           `yaml:"max_open"`
}

// EventsConfig tunes the event bus
type EventsConfig struct {
	Buffer      int           `yaml:"buffer"`
	DedupWindow time.Duration `yaml:"dedup_window"`
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
}

// ReconcilerConfig configures the periodic resync
type ReconcilerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig configures the gauge collector
type MetricsConfig struct {
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// LoggingConfig configures pkg/log
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend:        BackendBolt,
			DataDir:        "./stockroom-data",
			GlobalDatabase: "global",
			OpenTimeout:    5 * time.Second,
		},
		Router: RouterConfig{
			IdleTimeout:   10 * time.Minute,
			SweepInterval: 5 * time.Minute,
			MaxAttempts:   3,
			RetryInterval: time.Second,
		},
		Events: EventsConfig{
			Buffer:      100,
			DedupWindow: 2 * time.Second,
			DedupTTL:    10 * time.Second,
		},
		Reconciler: ReconcilerConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			CollectInterval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file and STOCKROOM_* environment variables, in that order
func Load(path string) (*Config, error) {
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
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOCKROOM_* variables read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("ADDR", &c.Server.Addr)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("DATA_DIR", &c.Storage.DataDir)
	str("MONGO_URI", &c.Storage.MongoURI)
	str("GLOBAL_DATABASE", &c.Storage.GlobalDatabase)
	str("LOG_LEVEL", &c.Logging.Level)

	return errors.Join(
		flag("LOG_JSON", &c.Logging.JSON),
		dur("IDLE_TIMEOUT", &c.Router.IdleTimeout),
		dur("SWEEP_INTERVAL", &c.Router.SweepInterval),
		num("MAX_ATTEMPTS", &c.Router.MaxAttempts),
		dur("RETRY_INTERVAL", &c.Router.RetryInterval),
		num("MAX_OPEN", &c.Router.MaxOpen),
		flag("RECONCILER_ENABLED", &c.Reconciler.Enabled),
		dur("RECONCILE_INTERVAL", &c.Reconciler.Interval),
	)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBolt:
		if c.Storage.DataDir == "" {
			return errors.New("storage.data_dir is required for the bolt backend")
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: %s, %s", BackendBolt, BackendMongo)
	}
	if c.Storage.GlobalDatabase == "" {
		c.Storage.GlobalDatabase = "global"
	}
	if c.Router.MaxAttempts <= 0 {
		return errors.New("router.max_attempts must be positive")
	}
	if c.Router.IdleTimeout <= 0 {
		return errors.New("router.idle_timeout must be positive")
	}
	if c.Router.MaxOpen < 0 {
		return errors.New("router.max_open must not be negative")
	}
	if c.Reconciler.Enabled && c.Reconciler.Interval <= 0 {
		return errors.New("reconciler.interval must be positive")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}
