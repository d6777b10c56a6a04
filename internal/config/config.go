package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quillsync/internal/domain"
)

type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Local     LocalConfig
	Sync      SyncConfig
	Session   SessionConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type RemoteConfig struct {
	URL      string
	User     string
	Password string
	Name     string
}

type LocalConfig struct {
	DSN string
}

type SyncConfig struct {
	DeviceID           string
	Debounce           time.Duration
	StaleWindow        time.Duration
	RemoteDeletePolicy domain.RemoteDeletePolicy
}

type SessionConfig struct {
	TokenPath string
	Secret    string
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	debounce, err := time.ParseDuration(getEnv("SYNC_DEBOUNCE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_DEBOUNCE: %w", err)
	}

	staleWindow, err := time.ParseDuration(getEnv("SYNC_STALE_WINDOW", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_STALE_WINDOW: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
			Host: getEnv("HOST", "127.0.0.1"),
			Env:  getEnv("ENV", "development"),
		},
		Remote: RemoteConfig{
			URL:      getEnv("COUCHDB_URL", "http://localhost:5984"),
			User:     getEnv("COUCHDB_USER", "admin"),
			Password: getEnv("COUCHDB_PASSWORD", "password"),
			Name:     getEnv("COUCHDB_NAME", "quillsync"),
		},
		Local: LocalConfig{
			DSN: getEnv("LOCAL_DB_PATH", "quillsync.db"),
		},
		Sync: SyncConfig{
			DeviceID:           getEnv("DEVICE_ID", uuid.New().String()),
			Debounce:           debounce,
			StaleWindow:        staleWindow,
			RemoteDeletePolicy: domain.ParseRemoteDeletePolicy(getEnv("SYNC_REMOTE_DELETE_POLICY", "ignore")),
		},
		Session: SessionConfig{
			TokenPath: getEnv("SESSION_TOKEN_PATH", ".session-token"),
			Secret:    getEnv("SESSION_SECRET", "dev-secret-change-in-production"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
