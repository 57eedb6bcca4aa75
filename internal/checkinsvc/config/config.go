package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every operational knob of the check-in engine. Each
// component receives it (or the part it needs) at construction.
type Config struct {
	Port string `env:"CHECKIN_SERVICE_PORT" envDefault:"8090"`

	PostgresURL string `env:"POSTGRES_URL"`
	MongoURI    string `env:"MONGODB_URI"`
	NatsURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NatsToken   string `env:"NATS_TOKEN"`
	JWTSecret   string `env:"JWT_SECRET_KEY"`
	RateLimit   int    `env:"RATE_LIMIT" envDefault:"120"`

	// DwellCeiling is how long a visit may stay open before the reaper closes it.
	DwellCeiling time.Duration `env:"CHECKIN_DWELL_CEILING" envDefault:"3h"`
	// ReaperInterval is the cadence of the reaper sweep.
	ReaperInterval time.Duration `env:"CHECKIN_REAPER_INTERVAL" envDefault:"60s"`
	ReaperEnabled  bool          `env:"REAPER_ENABLED" envDefault:"true"`
	// OccupancyTTL bounds how stale the cached occupancy count may get.
	OccupancyTTL time.Duration `env:"CHECKIN_OCCUPANCY_TTL" envDefault:"60s"`
	// TicketTTL is the validity window of a member display ticket.
	TicketTTL time.Duration `env:"CHECKIN_TICKET_TTL" envDefault:"2m"`
	// TicketRenewWindow: a ticket with less remaining life than this is
	// replaced on reissue instead of returned.
	TicketRenewWindow time.Duration `env:"CHECKIN_TICKET_RENEW_WINDOW" envDefault:"30s"`
	// Cooldown follows a successful check-in; ticket regeneration and
	// re-entry on the same credential are refused while it runs.
	Cooldown time.Duration `env:"CHECKIN_COOLDOWN" envDefault:"5m"`
}

// Default returns the documented defaults without reading the environment.
func Default() Config {
	return Config{
		Port:              "8090",
		NatsURL:           "nats://localhost:4222",
		RateLimit:         120,
		DwellCeiling:      3 * time.Hour,
		ReaperInterval:    time.Minute,
		ReaperEnabled:     true,
		OccupancyTTL:      time.Minute,
		TicketTTL:         2 * time.Minute,
		TicketRenewWindow: 30 * time.Second,
		Cooldown:          5 * time.Minute,
	}
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"CHECKIN_DWELL_CEILING":   c.DwellCeiling,
		"CHECKIN_REAPER_INTERVAL": c.ReaperInterval,
		"CHECKIN_OCCUPANCY_TTL":   c.OccupancyTTL,
		"CHECKIN_TICKET_TTL":      c.TicketTTL,
		"CHECKIN_COOLDOWN":        c.Cooldown,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.TicketRenewWindow < 0 || c.TicketRenewWindow >= c.TicketTTL {
		return fmt.Errorf("CHECKIN_TICKET_RENEW_WINDOW must be in [0, %s), got %s", c.TicketTTL, c.TicketRenewWindow)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	return nil
}
