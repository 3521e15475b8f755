// Package config loads jobseal settings from the environment.
//
// All variables carry the JOBSEAL_ prefix, e.g. JOBSEAL_QUEUE_TYPE or
// JOBSEAL_REDIS_ADDR. Load also reads optional .env files first; values
// already present in the environment win.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/petrijr/jobseal/pkg/api"
	"github.com/petrijr/jobseal/pkg/sealer"
)

// Prefix is prepended to every environment variable name.
const Prefix = "JOBSEAL_"

// Store drivers understood by StoreConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("jobseal: invalid configuration")

// Config holds all jobseal settings.
type Config struct {
	QueueType string `env:"QUEUE_TYPE" envDefault:"default"`

	Store  StoreConfig
	Worker WorkerConfig

	// Private key of the worker, base64. PrivateKeyFile is read when
	// PrivateKey is empty.
	PrivateKey     string `env:"PRIVATE_KEY"`
	PrivateKeyFile string `env:"PRIVATE_KEY_FILE"`

	CryptoFailurePolicy string `env:"CRYPTO_FAILURE_POLICY" envDefault:"continue"`

	// Zero waits until the job is consumed.
	PerformTimeout  time.Duration `env:"PERFORM_TIMEOUT" envDefault:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Driver       string        `env:"STORE" envDefault:"sqlite"`
	PollInterval time.Duration `env:"STORE_POLL_INTERVAL" envDefault:"100ms"`

	SQLitePath  string `env:"SQLITE_PATH" envDefault:"jobseal.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	Redis RedisConfig `envPrefix:"REDIS_"`
	Mongo MongoConfig `envPrefix:"MONGO_"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"jobseal:"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string `env:"URI" envDefault:"mongodb://localhost:27017"`
	Database   string `env:"DATABASE" envDefault:"jobseal"`
	Collection string `env:"COLLECTION" envDefault:"records"`
}

// WorkerConfig configures the store-backed provider.
type WorkerConfig struct {
	Concurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"1"`
	Lease        time.Duration `env:"WORKER_LEASE" envDefault:"5m"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"100ms"`
	MaxAttempts  int           `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// Retry delay after the first failure, doubled per attempt up to
	// BackoffMax. Zero retries immediately.
	Backoff    time.Duration `env:"WORKER_BACKOFF" envDefault:"0s"`
	BackoffMax time.Duration `env:"WORKER_BACKOFF_MAX" envDefault:"1m"`
}

// Load reads the given .env files (".env" when none are given), then the
// process environment, and validates the result.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap builds a Config from environ instead of the process
// environment. Keys carry the JOBSEAL_ prefix.
func FromMap(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	if _, err := api.ParseQueueType(c.QueueType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := sealer.ParseFailurePolicy(c.CryptoFailurePolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverMongo:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: %sSQLITE_PATH is required for the sqlite store", ErrInvalidConfig, Prefix)
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("%w: %sPOSTGRES_DSN is required for the postgres store", ErrInvalidConfig, Prefix)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("%w: worker concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("%w: worker max attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Queue returns the validated queue type.
func (c *Config) Queue() api.QueueType {
	q, _ := api.ParseQueueType(c.QueueType)
	return q
}

// Policy returns the validated crypto failure policy.
func (c *Config) Policy() sealer.FailurePolicy {
	p, _ := sealer.ParseFailurePolicy(c.CryptoFailurePolicy)
	return p
}

// Keypair returns the worker keypair, or nil when neither PrivateKey nor
// PrivateKeyFile is set.
func (c *Config) Keypair() (*sealer.Keypair, error) {
	raw := c.PrivateKey
	if raw == "" && c.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		raw = string(b)
	}
	if raw == "" {
		return nil, nil
	}
	return sealer.ParsePrivateKey(raw)
}

// NewLogger builds a slog logger writing to w at the configured level
// and format ("text" or "json").
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}
