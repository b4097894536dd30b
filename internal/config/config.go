// Package config loads core runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"hl7-interop-bridge/internal/storage/postgres"
	"hl7-interop-bridge/internal/storage/redis"
)

// Config is the unified configuration for the interoperability core.
type Config struct {
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	Logging     LoggingConfig
	MLLP        MLLPConfig
	HTTP        HTTPConfig
	PAM         PAMConfig
	Identity    IdentityConfig
}

// DatabaseConfig configures the PostgreSQL canonical store.
type DatabaseConfig struct {
	Host           string `env:"DB_HOST"`
	Port           int    `env:"DB_PORT"`
	Database       string `env:"DB_NAME"`
	Username       string `env:"DB_USERNAME"`
	Password       string `env:"DB_PASSWORD"`
	MaxConnections int    `env:"DB_MAX_CONNECTIONS"`
	SSLMode        string `env:"DB_SSL_MODE"`
}

// RedisConfig configures the distributed lock / fast-path cache.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	Database int    `env:"REDIS_DATABASE"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL"`
}

// MLLPConfig configures framing and read timeouts
type MLLPConfig struct {
	MaxFrameBytes      int           `env:"MLLP_MAX_FRAME_BYTES"`
	ReadTimeout        time.Duration `env:"MLLP_READ_TIMEOUT_SECONDS"`
	SenderIdleTimeout  time.Duration
	ListenerDrainGrace time.Duration
}

// HTTPConfig configures the outbound FHIR client
type HTTPConfig struct {
	Timeout time.Duration `env:"HTTP_TIMEOUT_SECONDS"`
}

// PAMConfig configures the validator/state-machine strictness flags,
// including the resolved default for A08 rejection and missing ZBE-6.
type PAMConfig struct {
	StrictPAMFR       bool `env:"STRICT_PAM_FR"`
	AutoCreateUF      bool `env:"PAM_AUTO_CREATE_UF"`
	AutoVirtualPole   bool `env:"MFN_AUTO_VIRTUAL_POLE"`
	RelaxTransitions  bool `env:"PAM_RELAX_TRANSITIONS"`
}

// IdentityConfig carries the core's own sending application/facility
// identity, stamped into outbound MSH-3/MSH-4 and used as the fallback CX/
// FHIR identifier-system authority when an endpoint defines no override.
type IdentityConfig struct {
	SendingApplication string `env:"SENDING_APPLICATION"`
	SendingFacility    string `env:"SENDING_FACILITY"`
	AssigningAuthority string `env:"ASSIGNING_AUTHORITY"`
}

// Load reads configuration from the environment, optionally preloaded from
// a ".env" file the same way the reference implementation's config loader does.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("[CONFIG] no .env file loaded: %v\n", err)
	}

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			Database:       getEnv("DB_NAME", "interop_bridge"),
			Username:       getEnv("DB_USERNAME", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 25),
			SSLMode:        getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			Database: getEnvInt("REDIS_DATABASE", 0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		MLLP: MLLPConfig{
			MaxFrameBytes:      getEnvInt("MLLP_MAX_FRAME_BYTES", 1024*1024),
			ReadTimeout:        time.Duration(getEnvInt("MLLP_READ_TIMEOUT_SECONDS", 30)) * time.Second,
			SenderIdleTimeout:  60 * time.Second,
			ListenerDrainGrace: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		PAM: PAMConfig{
			StrictPAMFR:      getEnvBool("STRICT_PAM_FR", false),
			AutoCreateUF:     getEnvBool("PAM_AUTO_CREATE_UF", false),
			AutoVirtualPole:  getEnvBool("MFN_AUTO_VIRTUAL_POLE", true),
			RelaxTransitions: getEnvBool("PAM_RELAX_TRANSITIONS", false),
		},
		Identity: IdentityConfig{
			SendingApplication: getEnv("SENDING_APPLICATION", "HL7BRIDGE"),
			SendingFacility:    getEnv("SENDING_FACILITY", "CORE"),
			AssigningAuthority: getEnv("ASSIGNING_AUTHORITY", "1.2.250.1.71.4.2.2"),
		},
	}

	return cfg, nil
}

// PostgresConfig adapts the unified config to the storage/postgres client.
func (c *Config) PostgresConfig() *postgres.DatabaseConfig {
	return &postgres.DatabaseConfig{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Database: c.Database.Database,
		Username: c.Database.Username,
		Password: c.Database.Password,
		SSLMode:  c.Database.SSLMode,
	}
}

// RedisClientConfig adapts the unified config to the storage/redis client.
func (c *Config) RedisClientConfig() *redis.Config {
	return &redis.Config{
		Host:     c.Redis.Host,
		Port:     c.Redis.Port,
		Password: c.Redis.Password,
		Database: c.Redis.Database,
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if bv, err := strconv.ParseBool(v); err == nil {
			return bv
		}
	}
	return defaultValue
}
