// Package config loads process configuration from the environment, with an
// optional YAML file (SEAL_CONFIG) layered on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sealcoin/seal/pkg/artifacts"
	"github.com/sealcoin/seal/pkg/observability"
)

// State backends.
const (
	BackendAuto     = ""
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Auth modes.
const (
	AuthSigned   = "signed"
	AuthAllowAll = "allow-all"
)

// DefaultOracleURL is NSIDC's daily northern-hemisphere extent feed.
const DefaultOracleURL = "https://noaadata.apps.nsidc.org/NOAA/G02135/north/daily/data/N_seaice_extent_daily_v3.0.csv"

// Config holds process configuration.
type Config struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"log_level"`
	DataDir    string `yaml:"data_dir"`
	Production bool   `yaml:"production"`

	// StateBackend picks the state store. Empty means lite mode: SQLite
	// unless DatabaseURL is set.
	StateBackend string `yaml:"state_backend"`
	DatabaseURL  string `yaml:"database_url"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisPrefix  string `yaml:"redis_prefix"`

	ContractName string `yaml:"contract_name"`
	AuthMode     string `yaml:"auth_mode"`
	KeysDir      string `yaml:"keys_dir"`
	BaselinePath string `yaml:"baseline_path"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	Artifacts artifacts.Config     `yaml:"artifacts"`
	Telemetry observability.Config `yaml:"telemetry"`
	Oracle    OracleConfig         `yaml:"oracle"`
}

// OracleConfig configures the measurement submitter.
type OracleConfig struct {
	APIURL   string        `yaml:"api_url"`
	Source   string        `yaml:"source"`
	Interval time.Duration `yaml:"interval"`
	Guard    string        `yaml:"guard"`
	Token    string        `yaml:"token"`
	// Genesis and Volatile are in whole tokens.
	Genesis  int64 `yaml:"genesis"`
	Volatile int64 `yaml:"volatile"`
}

// Load reads configuration from environment variables, then applies the
// file named by SEAL_CONFIG if set.
func Load() (*Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("SEAL_CONFIG"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// FromEnv reads configuration from environment variables only.
func FromEnv() *Config {
	dataDir := env("DATA_DIR", "data")
	telemetry := observability.DefaultConfig()
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		telemetry.Enabled = true
		telemetry.OTLPEndpoint = ep
		telemetry.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}
	if env("SEAL_PRODUCTION", "") == "1" {
		telemetry.Environment = "production"
	}

	return &Config{
		Port:         env("PORT", "8080"),
		LogLevel:     env("LOG_LEVEL", "INFO"),
		DataDir:      dataDir,
		Production:   os.Getenv("SEAL_PRODUCTION") == "1",
		StateBackend: os.Getenv("SEAL_STATE_BACKEND"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    env("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:  env("SEAL_REDIS_PREFIX", "seal:"),
		ContractName: env("SEAL_CONTRACT", "seal-coin"),
		AuthMode:     env("SEAL_AUTH", AuthSigned),
		KeysDir:      env("SEAL_KEYS_DIR", dataDir+"/keys"),
		BaselinePath: os.Getenv("SEAL_BASELINE"),

		RateLimitRPS:   envFloat("SEAL_RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("SEAL_RATE_LIMIT_BURST", 20),

		Artifacts: artifacts.Config{
			Type:       artifacts.StoreType(os.Getenv("SEAL_ARTIFACT_STORAGE_TYPE")),
			DataDir:    dataDir,
			S3Bucket:   os.Getenv("SEAL_ARTIFACT_S3_BUCKET"),
			S3Region:   env("SEAL_ARTIFACT_S3_REGION", os.Getenv("AWS_REGION")),
			S3Endpoint: os.Getenv("SEAL_ARTIFACT_S3_ENDPOINT"),
			S3Prefix:   os.Getenv("SEAL_ARTIFACT_S3_PREFIX"),
			GCSBucket:  os.Getenv("SEAL_ARTIFACT_GCS_BUCKET"),
			GCSPrefix:  os.Getenv("SEAL_ARTIFACT_GCS_PREFIX"),
		},
		Telemetry: *telemetry,
		Oracle: OracleConfig{
			APIURL:   env("SEAL_API_URL", "http://localhost:8080"),
			Source:   env("SEAL_ORACLE_SOURCE", DefaultOracleURL),
			Interval: envDuration("SEAL_ORACLE_INTERVAL", time.Hour),
			Guard:    os.Getenv("SEAL_ORACLE_GUARD"),
			Genesis:  int64(envInt("SEAL_TOKEN_GENESIS", 1_000_000_000)),
			Volatile: int64(envInt("SEAL_TOKEN_VOLATILE", 500_000_000)),
			Token:    os.Getenv("SEAL_TOKEN"),
		},
	}
}

// ApplyFile overlays the YAML document at path. Keys absent from the file
// keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// Backend resolves the effective state backend.
func (c *Config) Backend() string {
	if c.StateBackend != BackendAuto {
		return c.StateBackend
	}
	if c.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
