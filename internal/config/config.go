package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvLocal is the only environment allowed to run without DATABASE_URL.
	EnvLocal = "local"

	defaultEnvFile    = ".env"
	defaultConfigFile = "config.yml"
	defaultDatabase   = "sqlite://macro_dashboard.db"
)

// Config holds all service settings. It is built once at startup and passed
// to every component that needs it.
type Config struct {
	Env             string
	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// FRED API configuration.
	FredAPIKey     string
	FredBaseURL    string
	FredTimeout    time.Duration
	FredRetryCount int

	DatabaseURL   string
	TrackedSeries []string

	IngestInterval    time.Duration
	IngestConcurrency int

	MetadataCacheSize int
	MetadataCacheTTL  time.Duration

	// Optional Kafka fan-out of normalized records.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// fileConfig is the local fallback config.yml layout.
type fileConfig struct {
	APIKeys struct {
		Fred string `yaml:"fred"`
	} `yaml:"api_keys"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Fred struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		RetryCount     int    `yaml:"retry_count"`
	} `yaml:"fred"`
	TrackedSeries []string `yaml:"tracked_series"`
}

// Load reads configuration from the environment, then .env, then config.yml
// in the working directory, applying defaults where nothing is set.
func Load() (*Config, error) {
	return LoadFrom(defaultEnvFile, defaultConfigFile)
}

// LoadFrom is Load with explicit .env and config.yml paths. Missing files are
// skipped. Variables already set in the environment are never overridden.
func LoadFrom(envFile, configFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	file, err := loadConfigFile(configFile)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fredTimeout, err := parseFredTimeout(file)
	if err != nil {
		return nil, err
	}

	retryCount, err := parsePositiveInt("FRED_RETRY_COUNT", strconv.Itoa(orDefault(file.Fred.RetryCount, 3)))
	if err != nil {
		return nil, err
	}

	interval, err := parsePositiveDuration("INGEST_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("INGEST_CONCURRENCY", "1")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("METADATA_CACHE_SIZE", "256")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("METADATA_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}

	env := sharedcfg.EnvOrDefault("ENV", EnvLocal)

	databaseURL := firstNonEmpty(os.Getenv("DATABASE_URL"), file.Database.URL)
	if databaseURL == "" && env == EnvLocal {
		databaseURL = defaultDatabase
	}

	tracked := sharedcfg.ParseBrokers(os.Getenv("TRACKED_SERIES"))
	if len(tracked) == 0 {
		tracked = file.TrackedSeries
	}

	kafkaBrokers := sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		Env:             env,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,

		FredAPIKey:     firstNonEmpty(os.Getenv("FRED_API_KEY"), file.APIKeys.Fred),
		FredBaseURL:    strings.TrimRight(sharedcfg.EnvOrDefault("FRED_BASE_URL", firstNonEmpty(file.Fred.BaseURL, "https://api.stlouisfed.org/fred")), "/"),
		FredTimeout:    fredTimeout,
		FredRetryCount: retryCount,

		DatabaseURL:   databaseURL,
		TrackedSeries: tracked,

		IngestInterval:    interval,
		IngestConcurrency: concurrency,

		MetadataCacheSize: cacheSize,
		MetadataCacheTTL:  cacheTTL,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "macro-records"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set when ENV=%s", cfg.Env)
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// loadEnvFile applies a .env file without overriding variables that are
// already present in the environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func parseFredTimeout(file fileConfig) (time.Duration, error) {
	def := "10s"
	if file.Fred.TimeoutSeconds > 0 {
		def = (time.Duration(file.Fred.TimeoutSeconds) * time.Second).String()
	}
	return parsePositiveDuration("FRED_TIMEOUT", def)
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
