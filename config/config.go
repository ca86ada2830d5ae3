package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Relay is the relay server's environment.
type Relay struct {
	Port           string   `env:"PORT" envDefault:"4000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	SentryDSN      string   `env:"SENTRY_DSN"`
	SendQueue      int      `env:"SEND_QUEUE" envDefault:"64"`
}

// Addr is the listen address for Port.
func (c Relay) Addr() string {
	return ":" + c.Port
}

// Client is the terminal client's environment. Command line flags override it.
type Client struct {
	WSURL     string `env:"INTAKE_WS_URL" envDefault:"ws://localhost:4000/ws"`
	Store     string `env:"INTAKE_STORE" envDefault:"file"`
	StateFile string `env:"INTAKE_STATE_FILE"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadRelay() (Relay, error) {
	var cfg Relay
	if err := ParseEnv(&cfg); err != nil {
		return Relay{}, err
	}
	if cfg.SendQueue <= 0 {
		return Relay{}, fmt.Errorf("SEND_QUEUE must be positive, got %d", cfg.SendQueue)
	}
	return cfg, nil
}

func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Level parses a zerolog level name; an empty string means info.
func Level(name string) (zerolog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}
