package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. TLCFETCH_FETCH_WORKERS.
const EnvPrefix = "TLCFETCH_"

// Config holds all configuration for the application
type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Logger   LoggerConfig   `koanf:"logger"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Database DatabaseConfig `koanf:"database"`
	Events   EventsConfig   `koanf:"events"`
	Mirror   MirrorConfig   `koanf:"mirror"`
}

// ServiceConfig contains service metadata.
type ServiceConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"` // development, production
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// CatalogConfig holds the remote base locations per resource family.
type CatalogConfig struct {
	TripBaseURL string `koanf:"trip_base_url"`
	MiscBaseURL string `koanf:"misc_base_url"`
}

// FetchConfig controls transfers, retries and the local layout root.
type FetchConfig struct {
	DataDir           string        `koanf:"data_dir"`
	Workers           int           `koanf:"workers"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	VerifyRetries     int           `koanf:"verify_retries"`
	ProbeTimeout      time.Duration `koanf:"probe_timeout"`
	ProgressInterval  time.Duration `koanf:"progress_interval"`
	UserAgent         string        `koanf:"user_agent"`
}

// DatabaseConfig configures the run history store.
type DatabaseConfig struct {
	Driver       string        `koanf:"driver"` // sqlite, postgres, none
	DSN          string        `koanf:"dsn"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	MaxLifetime  time.Duration `koanf:"max_lifetime"`
}

// EventsConfig configures run notifications.
type EventsConfig struct {
	Driver        string        `koanf:"driver"` // none, nats, kafka
	NATSURL       string        `koanf:"nats_url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnect  int           `koanf:"max_reconnect"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	KafkaBrokers  []string      `koanf:"kafka_brokers"`
	KafkaTopic    string        `koanf:"kafka_topic"`
}

// MirrorConfig configures the optional copy of verified files to object storage.
type MirrorConfig struct {
	Type      string `koanf:"type"` // none, s3, blob
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	BucketURL string `koanf:"bucket_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "tlcfetch",
			Environment: "development",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
		Catalog: CatalogConfig{
			TripBaseURL: "https://d37ci6vzurychx.cloudfront.net/trip-data",
			MiscBaseURL: "https://d37ci6vzurychx.cloudfront.net/misc",
		},
		Fetch: FetchConfig{
			DataDir:           "data",
			Workers:           4,
			MaxAttempts:       4,
			InitialBackoff:    time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2,
			VerifyRetries:     1,
			ProbeTimeout:      30 * time.Second,
			ProgressInterval:  5 * time.Second,
			UserAgent:         "tlcfetch/1.0",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			MaxLifetime:  time.Hour,
		},
		Events: EventsConfig{
			Driver:        "none",
			NATSURL:       "nats://localhost:4222",
			SubjectPrefix: "tlcfetch",
			MaxReconnect:  5,
			ReconnectWait: 2 * time.Second,
			KafkaTopic:    "tlcfetch.events",
		},
		Mirror: MirrorConfig{
			Type:   "none",
			Prefix: "raw",
			Region: "us-east-1",
		},
	}
}

// HistoryDSN returns the database DSN, defaulting the sqlite file under the data dir.
func (c *Config) HistoryDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.Fetch.DataDir, ".tlcfetch", "history.db")
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Fetch.DataDir == "" {
		errs = append(errs, errors.New("fetch.data_dir is required"))
	}
	if c.Fetch.Workers < 1 {
		errs = append(errs, fmt.Errorf("fetch.workers must be at least 1, got %d", c.Fetch.Workers))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts))
	}
	if c.Fetch.VerifyRetries < 0 {
		errs = append(errs, errors.New("fetch.verify_retries must not be negative"))
	}
	if c.Fetch.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("fetch.backoff_multiplier must be >= 1"))
	}
	if c.Catalog.TripBaseURL == "" || c.Catalog.MiscBaseURL == "" {
		errs = append(errs, errors.New("catalog base URLs are required"))
	}

	switch c.Database.Driver {
	case "none", "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	switch c.Events.Driver {
	case "none":
	case "nats":
		if c.Events.NATSURL == "" {
			errs = append(errs, errors.New("events.nats_url is required for nats"))
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("events.kafka_brokers is required for kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported events.driver %q", c.Events.Driver))
	}

	switch c.Mirror.Type {
	case "none":
	case "s3":
		if c.Mirror.Bucket == "" {
			errs = append(errs, errors.New("mirror.bucket is required for s3"))
		}
	case "blob":
		if c.Mirror.BucketURL == "" {
			errs = append(errs, errors.New("mirror.bucket_url is required for blob"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported mirror.type %q", c.Mirror.Type))
	}

	return errors.Join(errs...)
}

// Load reads configuration from defaults, the first config file found and the
// environment, in increasing order of precedence.
func Load(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range configPaths(explicitPath) {
		if err := loadFromFile(k, path); err != nil {
			if os.IsNotExist(err) && path != explicitPath {
				continue
			}
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		break
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps TLCFETCH_FETCH_MAX_ATTEMPTS to fetch.max_attempts. Only the first
// underscore separates the section; list values are comma separated.
func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)

	if strings.HasSuffix(key, "brokers") {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

func loadFromFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return k.Load(file.Provider(path), parser)
}

func configPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}

	paths := []string{
		"tlcfetch.yaml",
		"tlcfetch.json",
		"configs/tlcfetch.yaml",
		"configs/tlcfetch.json",
	}
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		paths = append([]string{configPath}, paths...)
	}
	return paths
}
