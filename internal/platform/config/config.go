package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	liststrings "medledger/pkg/platform/strings"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server      Server
	Ledger      Ledger
	Redis       RedisConfig
	Kafka       Kafka
	Identity    Identity
	Idempotency Idempotency
	Log         Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Ledger selects and locates the ledger substrate.
type Ledger struct {
	Backend     string
	SQLitePath  string
	LevelDBPath string
	DatabaseURL string
	TxTimeout   time.Duration
}

// RedisConfig configures the idempotency store. An empty URL keeps
// idempotency records in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit stream sink. No brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Identity configures provider token verification.
type Identity struct {
	JWTSecret string
	Issuer    string
}

type Idempotency struct {
	TTL time.Duration
}

type Log struct {
	Level  string
	Format string
}

const devJWTSecret = "dev-secret-key-change-in-production"

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("MEDLEDGER_ADDR", ":8080"),
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: Ledger{
			Backend:     strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
			SQLitePath:  getEnv("SQLITE_PATH", "medledger.db"),
			LevelDBPath: getEnv("LEVELDB_PATH", "medledger-leveldb"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers: liststrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:   getEnv("KAFKA_TOPIC", "medledger.audit"),
		},
		Identity: Identity{
			JWTSecret: getEnv("IDENTITY_JWT_SECRET", devJWTSecret),
			Issuer:    getEnv("IDENTITY_ISSUER", "medledger-identity"),
		},
		Log: Log{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	var errs []error
	var err error
	if cfg.Ledger.TxTimeout, err = durationEnv("LEDGER_TX_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Idempotency.TTL, err = durationEnv("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Ledger.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendLevelDB:
		if c.Ledger.LevelDBPath == "" {
			errs = append(errs, errors.New("LEVELDB_PATH is required for the leveldb backend"))
		}
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND %q is not one of memory, sqlite, leveldb, postgres", c.Ledger.Backend))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of json, text", c.Log.Format))
	}

	if len(c.Identity.JWTSecret) < 16 {
		errs = append(errs, errors.New("IDENTITY_JWT_SECRET must be at least 16 bytes"))
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, errors.New("IDENTITY_ISSUER must not be empty"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Idempotency.TTL < 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	return errs
}

// UsesDevSecret reports whether the built-in development signing key is active.
func (c Config) UsesDevSecret() bool {
	return c.Identity.JWTSecret == devJWTSecret
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
