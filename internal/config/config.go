package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Port             string   `env:"PORT" envDefault:"8000"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AllowCredentials bool     `env:"ALLOW_CREDENTIALS" envDefault:"false"`
	Environment      string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string   `env:"LOG_LEVEL" envDefault:"info"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"wachat-ws-group"`

	// Realtime events waiting for the bus; overflow is dropped and counted.
	EventBufferSize int `env:"EVENT_BUFFER_SIZE" envDefault:"1024"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"wachat"`

	// Empty secret disables token checks on the socket and REST routes.
	JWTSecret string `env:"JWT_SECRET_KEY"`

	TypingTimeout     time.Duration `env:"TYPING_TIMEOUT" envDefault:"3s"`
	StatusTTL         time.Duration `env:"STATUS_TTL" envDefault:"24h"`
	WSPongWait        time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WSWriteWait       time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	WSEventsPerSecond float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"20"`
	WSEventBurst      int           `env:"WS_EVENT_BURST" envDefault:"40"`
}

// LoadConfig parses the process environment into a Config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	for i, broker := range cfg.KafkaBrokers {
		cfg.KafkaBrokers[i] = strings.TrimSpace(broker)
	}

	if cfg.TypingTimeout <= 0 {
		return nil, fmt.Errorf("TYPING_TIMEOUT must be positive")
	}
	if cfg.StatusTTL <= 0 {
		return nil, fmt.Errorf("STATUS_TTL must be positive")
	}
	if cfg.WSWriteWait <= 0 || cfg.WSPongWait <= 0 {
		return nil, fmt.Errorf("WS_PONG_WAIT and WS_WRITE_WAIT must be positive")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required in production")
	}

	return cfg, nil
}

// GetCORSOrigins returns CORS origins as a comma-separated string
func (c *Config) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// PingPeriod is how often the gateway pings a socket. Must be less than WSPongWait.
func (c *Config) PingPeriod() time.Duration {
	return (c.WSPongWait * 9) / 10
}

// IsDevelopment returns true if environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
