package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type StorageBackend string

const (
	StorageBackendLocal StorageBackend = "local"
	StorageBackendS3    StorageBackend = "s3"
)

type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKeyID  string
	AccessSecret string
	UsePathStyle bool
}

// CacheConfig sizes the client-side filter cache used by the console.
type CacheConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxTables     int
	MaxFilters    int
}

type Config struct {
	Addr               string
	BaseURL            string
	DBPath             string
	ExportDir          string
	BodyLimitMB        int
	Storage            StorageBackend
	S3                 S3Config
	AllowRegistration  bool
	BootstrapUser      string
	BootstrapToken     string
	TableCatalogPath   string
	StandardFilterName string
	APIToken           string
	HTTPTimeout        time.Duration
	Cache              CacheConfig
}

func Load() (Config, error) {
	cfg := Config{
		Addr:               env("APP_ADDR", ":12843"),
		BaseURL:            strings.TrimRight(env("BASE_URL", "http://localhost:12843"), "/"),
		DBPath:             env("DB_PATH", "./data/filterdeck.db"),
		ExportDir:          env("EXPORT_DIR", "./data/exports"),
		BodyLimitMB:        envInt("HTTP_BODY_LIMIT_MB", 4),
		Storage:            StorageBackend(strings.ToLower(env("STORAGE_BACKEND", string(StorageBackendLocal)))),
		AllowRegistration:  envBool("ALLOW_REGISTRATION", true),
		BootstrapUser:      env("BOOTSTRAP_USER", "demo"),
		BootstrapToken:     env("BOOTSTRAP_TOKEN", ""),
		TableCatalogPath:   env("TABLE_CATALOG_PATH", ""),
		StandardFilterName: env("STANDARD_FILTER_NAME", "All"),
		APIToken:           env("API_TOKEN", ""),
		HTTPTimeout:        envDuration("HTTP_TIMEOUT", 30*time.Second),
		Cache: CacheConfig{
			TTL:           envDuration("CACHE_TTL", 60*time.Minute),
			SweepInterval: envDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),
			MaxTables:     envInt("CACHE_MAX_TABLES", 20),
			MaxFilters:    envInt("CACHE_MAX_FILTERS", 50),
		},
	}

	switch cfg.Storage {
	case StorageBackendLocal:
	case StorageBackendS3:
		cfg.S3 = S3Config{
			Endpoint:     env("S3_ENDPOINT", ""),
			Region:       env("S3_REGION", ""),
			Bucket:       env("S3_BUCKET", ""),
			AccessKeyID:  env("S3_ACCESS_KEY_ID", ""),
			AccessSecret: env("S3_ACCESS_SECRET", ""),
			UsePathStyle: envBool("S3_USE_PATH_STYLE", false),
		}
		if err := cfg.S3.Validate(); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported storage backend %q", cfg.Storage)
	}
	return cfg, nil
}

func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("s3 endpoint is required when storage backend is s3")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required when storage backend is s3")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required when storage backend is s3")
	}
	if c.AccessKeyID == "" {
		return fmt.Errorf("s3 access key id is required when storage backend is s3")
	}
	if c.AccessSecret == "" {
		return fmt.Errorf("s3 access key secret is required when storage backend is s3")
	}
	return nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
