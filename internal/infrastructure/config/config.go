package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the process-wide configuration surface, loaded once at startup
// and treated as immutable for the process lifetime.
type Config struct {
	Port     string `env:"PORT,     default=8080"`
	Env      string `env:"ENV,      default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	JWT     JWTConfig
	Lockout LockoutConfig
	Mongo   MongoConfig
	Redis   RedisConfig

	// ConfirmRedirectURL is the fixed target returned after a successful
	// email confirmation.
	ConfirmRedirectURL string `env:"CONFIRM_REDIRECT_URL, default=/login"`

	// PublicBaseURL prefixes the confirmation and reset links embedded in
	// outbound notifications.
	PublicBaseURL string `env:"PUBLIC_BASE_URL, default=http://localhost:8080"`
}

type JWTConfig struct {
	Secret     string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER,   default=homespot-identity"`
	Audience   string        `env:"JWT_AUDIENCE, default=homespot"`
	SessionTTL time.Duration `env:"SESSION_TTL,  default=24h"`
}

type LockoutConfig struct {
	Threshold int           `env:"LOCKOUT_THRESHOLD, default=5"`
	Cooldown  time.Duration `env:"LOCKOUT_COOLDOWN,  default=3m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
// Misconfiguration is fatal at startup, never a per-request error.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
