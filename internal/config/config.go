package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Host             string        `env:"CHAT_HOST,default=127.0.0.1" validate:"required"`
	Port             int           `env:"CHAT_PORT,default=8001" validate:"min=0,max=65535"`
	ServerName       string        `env:"CHAT_SERVER_NAME,default=chat.local"`
	MetricsAddr      string        `env:"METRICS_ADDR,default=:9090"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	MaxLine          int           `env:"HTTP_MAX_LINE,default=65536" validate:"min=1"`
	MaxHeaders       int           `env:"HTTP_MAX_HEADERS,default=100" validate:"min=1"`
	HistoryReplay    int           `env:"HISTORY_REPLAY,default=50" validate:"min=1"`
	OutboundBuffer   int           `env:"OUTBOUND_BUFFER,default=128" validate:"min=1"`
	RegistryBuffer   int           `env:"REGISTRY_BUFFER,default=128" validate:"min=1"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT,default=30s" validate:"gte=0"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT,default=0s" validate:"gte=0"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListenAddr is the chat listener address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
