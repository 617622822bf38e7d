package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, read from the environment.
type Config struct {
	Port          string        `env:"GROCERYSYNC_PORT" envDefault:"8080"`
	DBPath        string        `env:"GROCERYSYNC_DB_PATH" envDefault:"grocerysync.db"`
	RemoteBaseURL string        `env:"GROCERYSYNC_REMOTE_URL" envDefault:"http://localhost:3000"`
	AuthToken     string        `env:"GROCERYSYNC_AUTH_TOKEN"`
	UserID        string        `env:"GROCERYSYNC_USER_ID" envDefault:"local-user"`
	SyncInterval  time.Duration `env:"GROCERYSYNC_SYNC_INTERVAL" envDefault:"30s"`
	ProbeInterval time.Duration `env:"GROCERYSYNC_PROBE_INTERVAL" envDefault:"15s"`
	LogLevel      string        `env:"GROCERYSYNC_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
