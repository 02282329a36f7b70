package warden

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeConfigUpdateApply(t *testing.T) {
	t.Parallel()
	cfg := DefaultRuntimeConfig()

	paused := true
	status := "on patrol"
	debug := DBLogLevelDebug
	requestLimit := 2.5
	update := RuntimeConfigUpdate{
		Paused:                     &paused,
		DiscordCustomStatus:        &status,
		LogLevel:                   &debug,
		OpenAIMaxRequestsPerSecond: &requestLimit,
	}

	updates := update.apply(&cfg)
	assert.True(t, cfg.Paused)
	assert.Equal(t, "on patrol", cfg.DiscordCustomStatus)
	assert.Equal(t, DBLogLevelDebug, cfg.LogLevel)
	assert.Equal(t, 2.5, cfg.OpenAIMaxRequestsPerSecond)

	// Only the provided fields appear in the column map.
	assert.Len(t, updates, 4)
	assert.Equal(t, true, updates["paused"])
	assert.Equal(t, "on patrol", updates["discord_custom_status"])
	assert.Equal(t, debug, updates["log_level"])
	assert.Equal(t, 2.5, updates["openai_max_requests_per_second"])

	// Untouched fields keep their defaults.
	assert.Equal(t, DBLogLevelInfo, cfg.DiscordLogLevel)
	assert.Equal(t, DBLogLevelWarn, cfg.DatabaseLogLevel)
}

func TestRuntimeConfigUpdateEmptyApply(t *testing.T) {
	t.Parallel()
	cfg := DefaultRuntimeConfig()
	before := cfg

	updates := RuntimeConfigUpdate{}.apply(&cfg)
	assert.Empty(t, updates)
	assert.Equal(t, before, cfg)
}

func TestRuntimeConfigLogValueRedactsPassword(t *testing.T) {
	t.Parallel()
	cfg := DefaultRuntimeConfig()
	hashed, err := HashPassword("hunter2")
	require.NoError(t, err)
	cfg.AdminUsername = "admin"
	cfg.AdminPassword = hashed

	s := cfg.LogValue().String()
	assert.NotContains(t, s, hashed)
	assert.Contains(t, s, "[redacted]")
	assert.Contains(t, s, "admin")
}
