package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the Keyward server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Crypto   CryptoConfig
	Session  SessionConfig
	Keys     KeyConfig
	Names    NameConfig
}

type ServerConfig struct {
	Port         int           `env:"PORT,default=8080"`
	Environment  string        `env:"ENVIRONMENT,default=test"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,required"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=5m"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL,required"`
}

type CryptoConfig struct {
	// ServerEncryptionKey is the hex-encoded 32-byte key for at-rest secret
	// encryption. Rotating it invalidates stored encrypted secrets (reveal),
	// not the keys themselves: verify works off the digest index.
	ServerEncryptionKey string `env:"SERVER_ENCRYPTION_KEY,required"`
}

type SessionConfig struct {
	SigningSecret string        `env:"SESSION_SIGNING_SECRET,required"`
	TTL           time.Duration `env:"SESSION_TTL,default=15m"`
}

type KeyConfig struct {
	// RotationGrace is how long a rotated key keeps satisfying verify.
	RotationGrace time.Duration `env:"ROTATION_GRACE,default=168h"`
}

type NameConfig struct {
	ChangeLimit  int           `env:"NAME_CHANGE_LIMIT,default=2"`
	ChangeWindow time.Duration `env:"NAME_CHANGE_WINDOW,default=720h"`
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns a descriptive error if any required value is missing or invalid.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Environment != "live" && c.Server.Environment != "test" {
		return fmt.Errorf("ENVIRONMENT must be 'live' or 'test', got %q", c.Server.Environment)
	}
	if _, err := c.EncryptionKey(); err != nil {
		return err
	}
	if len(c.Session.SigningSecret) < 32 {
		return fmt.Errorf("SESSION_SIGNING_SECRET must be at least 32 characters")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Keys.RotationGrace < 0 {
		return fmt.Errorf("ROTATION_GRACE must not be negative")
	}
	if c.Names.ChangeLimit < 1 {
		return fmt.Errorf("NAME_CHANGE_LIMIT must be at least 1")
	}
	return nil
}

// EncryptionKey decodes the server encryption key and checks its length.
func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Crypto.ServerEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("SERVER_ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SERVER_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
