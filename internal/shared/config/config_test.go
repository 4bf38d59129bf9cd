package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "match-coordinator")

	cfg := Load()
	assert.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, "match_notifications", cfg.TopicMatchNotifications)
	assert.Equal(t, 15*time.Second, cfg.SettlementSweepInterval)

	s := cfg.MatchSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, match.DefaultSettings(), s)
}

func TestLoadMatchOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "match-coordinator")
	t.Setenv("MATCH_WAIT_TIMEOUT", "45")
	t.Setenv("MATCH_PLAY_TIMEOUT", "2m")
	t.Setenv("MATCH_COMMISSION_RATE", "0.05")
	t.Setenv("HOUSE_DISPLAY_NAME", "Dealer")
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	s := cfg.MatchSettings()
	assert.Equal(t, 45*time.Second, s.WaitTimeout)
	assert.Equal(t, 2*time.Minute, s.PlayTimeout)
	assert.InDelta(t, 0.05, s.CommissionRate, 1e-9)
	assert.Equal(t, "Dealer", s.HouseDisplayName)
	assert.Equal(t, 4, cfg.SettlementMaxAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestInvalidValuesFallBackOrFailValidation(t *testing.T) {
	t.Setenv("MATCH_TICK_INTERVAL", "soon")
	t.Setenv("MATCH_COMMISSION_RATE", "1.5")

	cfg := Load()
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Error(t, cfg.MatchSettings().Validate())
}

func TestServicePorts(t *testing.T) {
	for svc, port := range map[string]string{
		"wallet-service":      "8082",
		"api-gateway":         "8000",
		"notification-worker": "8085",
	} {
		t.Setenv("SERVICE_NAME", svc)
		assert.Equal(t, port, Load().HTTPPort, svc)
	}
}
