package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings. Every TTL is configuration, not a constant.
type Config struct {
	Port        string `env:"PORT" envDefault:"5000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Empty DSN selects the in-memory storage backend.
	DatabaseDSN string `env:"DB_DSN"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"chattrix.events"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	RoomTTL       time.Duration `env:"ROOM_TTL" envDefault:"15m"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"15m"`
	MessageTTL    time.Duration `env:"MESSAGE_TTL" envDefault:"5m"`
	RoomGrace     time.Duration `env:"ROOM_PURGE_GRACE" envDefault:"1h"`
	ReapInterval  time.Duration `env:"REAP_INTERVAL" envDefault:"5m"`
	RateLimitMax  int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitSpan time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`

	DefaultMaxUsers int `env:"DEFAULT_MAX_USERS" envDefault:"10"`

	// Absence of any read activity beyond this bound closes the connection.
	IdleTimeout time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"60s"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
