package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Realtime RealtimeConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int
	HealthCheckPort    int
	ShutdownTimeout    time.Duration
	RateLimitPerSecond int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Backend         string // "postgres" or "memory"
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	StatsTTL     time.Duration
	EventStream  string
}

// RealtimeConfig holds WebSocket hub configuration
type RealtimeConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	StaleThreshold    time.Duration
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	MaxConnections    int
	SendBufferSize    int
}

// AuthConfig holds JWT authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// Load loads configuration from environment variables.
// It automatically loads a .env file if one exists in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			HealthCheckPort:    getEnvAsInt("SERVER_HEALTH_PORT", 8081),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 50),
		},
		Database: DatabaseConfig{
			Backend:         getEnv("DB_BACKEND", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "pollpulse"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			StatsTTL:     getEnvAsDuration("REDIS_STATS_TTL", 30*time.Second),
			EventStream:  getEnv("REDIS_EVENT_STREAM", "poll-events"),
		},
		Realtime: RealtimeConfig{
			ReadTimeout:       getEnvAsDuration("WS_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:      getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			StaleThreshold:    getEnvAsDuration("WS_STALE_THRESHOLD", 5*time.Minute),
			SweepInterval:     getEnvAsDuration("WS_SWEEP_INTERVAL", 30*time.Second),
			HeartbeatInterval: getEnvAsDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
			MaxConnections:    getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
			SendBufferSize:    getEnvAsInt("WS_SEND_BUFFER_SIZE", 256),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Backend != "postgres" && c.Database.Backend != "memory" {
		return fmt.Errorf("DB_BACKEND must be postgres or memory, got %q", c.Database.Backend)
	}
	if c.Database.Backend == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Realtime.SendBufferSize <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER_SIZE must be positive")
	}
	if c.Realtime.StaleThreshold <= 0 {
		return fmt.Errorf("WS_STALE_THRESHOLD must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
