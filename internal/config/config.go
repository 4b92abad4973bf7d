// Package config loads every environment-driven setting the server
// needs at startup into one typed Config, following the same
// getEnv-with-default idiom the rest of the pack's config packages use
// rather than pulling in a dedicated config/flags library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level settings object cmd/server/main.go builds once
// at startup and threads through to every collaborator that needs it.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Storage  StorageConfig
	Dimse    DimseConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

type CacheConfig struct {
	Enabled         bool
	Type            string // "memory" or "redis"
	DatasetCapacity int    // number of parsed datasets internal/dicomcache keeps in-process
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

type StorageConfig struct {
	Root string
}

// ModalityConfig is one remote AE this server can C-ECHO/C-FIND against,
// the same shape Orthanc's own DicomModalities configuration entries take.
type ModalityConfig struct {
	AET  string
	Host string
	Port int
}

// DimseConfig holds the outbound DIMSE settings: the AE title this server
// presents as Calling AE, and the table of remote modalities reachable
// through pkg/dimse's C-ECHO/C-FIND client.
type DimseConfig struct {
	CallingAET string
	Modalities map[string]ModalityConfig
}

// Load reads a .env file if one is present (a missing file is not an
// error -- most deployments set the environment directly) and builds a
// Config from the environment, applying the same defaults Validate then
// checks are sane.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	readTimeout, err := time.ParseDuration(getEnv("SERVER_READ_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("SERVER_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	redisPort, err := getEnvInt("REDIS_PORT", 6379)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	serverPort, err := getEnvInt("SERVER_PORT", 8042)
	if err != nil {
		return nil, err
	}
	datasetCapacity, err := getEnvInt("CACHE_DATASET_CAPACITY", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         serverPort,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     dbPort,
			User:     getEnv("DB_USER", "orthanc"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", ":memory:"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: getEnv("DB_LOG_LEVEL", "warn"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Type:            getEnv("CACHE_TYPE", "memory"),
			DatasetCapacity: datasetCapacity,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "./data/storage"),
		},
		Dimse: DimseConfig{
			CallingAET: getEnv("DIMSE_CALLING_AET", "ORTHANC_GO"),
			Modalities: getEnvModalities("DIMSE_MODALITIES"),
		},
	}

	return cfg, nil
}

// Validate rejects a Config that would fail in a confusing way later --
// an empty storage root, an unknown cache type, or a postgres DSN
// missing its database name.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must not be empty")
	}
	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Database.Host != "" && c.Database.DBName == "" {
		return fmt.Errorf("database name must be set when a database host is configured")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvModalities parses "NAME:AET:HOST:PORT,NAME2:AET2:HOST2:PORT2" into
// a name-keyed modality table. A malformed entry is skipped rather than
// failing startup -- a typo'd modality just won't be reachable.
func getEnvModalities(key string) map[string]ModalityConfig {
	modalities := make(map[string]ModalityConfig)
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return modalities
	}
	for _, entry := range strings.Split(raw, ",") {
		fields := strings.Split(strings.TrimSpace(entry), ":")
		if len(fields) != 4 {
			continue
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}
		modalities[fields[0]] = ModalityConfig{AET: fields[1], Host: fields[2], Port: port}
	}
	return modalities
}

func getEnvList(key string, defaultValue []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
