package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.DwellCeiling, cfg.DwellCeiling)
	assert.Equal(t, def.ReaperInterval, cfg.ReaperInterval)
	assert.Equal(t, def.OccupancyTTL, cfg.OccupancyTTL)
	assert.Equal(t, def.TicketTTL, cfg.TicketTTL)
	assert.Equal(t, def.TicketRenewWindow, cfg.TicketRenewWindow)
	assert.Equal(t, def.Cooldown, cfg.Cooldown)
	assert.True(t, cfg.ReaperEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHECKIN_DWELL_CEILING", "90m")
	t.Setenv("CHECKIN_OCCUPANCY_TTL", "5s")
	t.Setenv("REAPER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.DwellCeiling)
	assert.Equal(t, 5*time.Second, cfg.OccupancyTTL)
	assert.False(t, cfg.ReaperEnabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unparsable duration", key: "CHECKIN_TICKET_TTL", value: "soon"},
		{name: "zero dwell ceiling", key: "CHECKIN_DWELL_CEILING", value: "0s"},
		{name: "negative cooldown", key: "CHECKIN_COOLDOWN", value: "-1m"},
		{name: "renew window past ttl", key: "CHECKIN_TICKET_RENEW_WINDOW", value: "10m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
