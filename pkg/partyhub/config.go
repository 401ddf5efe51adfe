package partyhub

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the engine and the sample gateway need.
// All fields come from the environment; the defaults make a bare
// `partyhub` invocation run memory-only on :8080.
type Config struct {
	Addr        string `env:"PARTYHUB_ADDR" envDefault:":8080"`
	BaseURL     string `env:"PARTYHUB_BASE_URL" envDefault:"http://localhost:8080"`
	RedisURL    string `env:"PARTYHUB_REDIS_URL"`
	ArchivePath string `env:"PARTYHUB_ARCHIVE_DB"`

	// DisconnectGrace is how long a fully disconnected session survives
	// before the deferred removal fires.
	DisconnectGrace time.Duration `env:"PARTYHUB_DISCONNECT_GRACE" envDefault:"60s"`
	// StaleTimeout removes sessions with no round progress at all.
	StaleTimeout time.Duration `env:"PARTYHUB_STALE_TIMEOUT" envDefault:"2h"`
	// FinishedGrace keeps finished sessions around long enough for
	// clients to fetch the final results.
	FinishedGrace time.Duration `env:"PARTYHUB_FINISHED_GRACE" envDefault:"5m"`
	GCInterval    time.Duration `env:"PARTYHUB_GC_INTERVAL" envDefault:"10m"`
}

// ParseConfig loads Config from environment variables.
func ParseConfig() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the config a zero environment would produce.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		BaseURL:         "http://localhost:8080",
		DisconnectGrace: time.Minute,
		StaleTimeout:    2 * time.Hour,
		FinishedGrace:   5 * time.Minute,
		GCInterval:      10 * time.Minute,
	}
}
