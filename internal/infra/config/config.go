package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env               string
	LogLevel          string
	HTTPAddr          string
	Store             string
	MongoURI          string
	MongoDB           string
	OracleURL         string
	OracleTimeout     time.Duration
	OracleMinInterval time.Duration
	Location          *time.Location
	KafkaBrokers      []string
	KafkaTopicPrefix  string
	KafkaGroupID      string
	SchedulerEnabled  bool
	CORSOrigins       []string
	ShutdownTimeout   time.Duration
}

// Load reads an optional .env file and then parses the current environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		Store:            strings.ToLower(getEnv("STORE", StoreMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "pricewatch"),
		OracleURL:        strings.TrimRight(getEnv("ORACLE_URL", "http://localhost:5000"), "/"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "pricewatch"),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}

	oracleTimeout, err := parseDurationEnv("ORACLE_TIMEOUT", 45*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.OracleTimeout = oracleTimeout

	minInterval, err := parseDurationEnv("ORACLE_MIN_INTERVAL", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.OracleMinInterval = minInterval

	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout = shutdown

	scheduler, err := parseBoolEnv("SCHEDULER_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	cfg.SchedulerEnabled = scheduler

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "Local"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	switch cfg.Store {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE %q: want memory or mongo", cfg.Store)
	}
	if cfg.OracleTimeout <= 0 {
		return Config{}, fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
