// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote backends for the fleet store.
const (
	BackendNone     = "none"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config is built once at startup and passed to every component.
type Config struct {
	Port        string
	LocalDBPath string
	StoreKey    string

	RemoteBackend string
	MongoURI      string
	MongoDB       string
	DatabaseURL   string

	JWTSecret string
	JWTExpiry time.Duration

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	BackupSchedule string
	BackupDir      string

	ImportPreviewLimit int

	LogLevel  string
	LogFormat string
	LogFile   string

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Load reads .env files when present, then the environment.
func Load(envFiles ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(envFiles...)
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:            get("PORT", "8080"),
		LocalDBPath:     get("LOCAL_DB_PATH", "fleet_local.db"),
		StoreKey:        get("STORE_KEY", "fleet-data"),
		RemoteBackend:   strings.ToLower(get("REMOTE_BACKEND", BackendNone)),
		MongoURI:        get("MONGO_URI", ""),
		MongoDB:         get("MONGO_DB", "fleet"),
		DatabaseURL:     get("DATABASE_URL", ""),
		JWTSecret:       get("JWT_SECRET", "default-secret-key-change-in-production"),
		MQTTBroker:      get("MQTT_BROKER", ""),
		MQTTClientID:    get("MQTT_CLIENT_ID", "fleet-tracker"),
		MQTTTopicPrefix: strings.TrimSuffix(get("MQTT_TOPIC_PREFIX", "fleet"), "/"),
		BackupSchedule:  get("BACKUP_SCHEDULE", "@daily"),
		BackupDir:       get("BACKUP_DIR", "backups"),
		LogLevel:        get("LOG_LEVEL", "info"),
		LogFormat:       get("LOG_FORMAT", "text"),
		LogFile:         get("LOG_FILE", ""),
	}
	if getenv("BACKUP_SCHEDULE") == "off" {
		cfg.BackupSchedule = ""
	}

	var err error
	if cfg.JWTExpiry, err = time.ParseDuration(get("JWT_EXPIRY", "24h")); err != nil {
		return nil, fmt.Errorf("JWT_EXPIRY: %w", err)
	}
	if cfg.ImportPreviewLimit, err = strconv.Atoi(get("IMPORT_PREVIEW_LIMIT", "50")); err != nil {
		return nil, fmt.Errorf("IMPORT_PREVIEW_LIMIT: %w", err)
	}
	if cfg.RateLimitMax, err = strconv.Atoi(get("RATE_LIMIT_MAX", "30")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_MAX: %w", err)
	}
	window, err := strconv.Atoi(get("RATE_LIMIT_WINDOW_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS: %w", err)
	}
	cfg.RateLimitWindow = time.Duration(window) * time.Second

	switch cfg.RemoteBackend {
	case BackendNone:
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("REMOTE_BACKEND=mongo requires MONGO_URI")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("REMOTE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("REMOTE_BACKEND: unknown backend %q", cfg.RemoteBackend)
	}
	return cfg, nil
}
