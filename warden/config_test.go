package warden

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	// Discord credentials are required and have no defaults.
	assert.Error(t, structValidator.Struct(cfg))

	cfg.Discord.Token = "token"
	cfg.Discord.ApplicationID = "12345"
	assert.NoError(t, structValidator.Struct(cfg))
}

func TestConfigValidationRejectsBadValues(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Discord.Token = "token"
	cfg.Discord.ApplicationID = "12345"

	cfg.DatabaseType = "mysql"
	assert.Error(t, structValidator.Struct(cfg))
	cfg.DatabaseType = DefaultDatabaseType

	cfg.API.SessionMaxAge = time.Minute
	assert.Error(t, structValidator.Struct(cfg))
	cfg.API.SessionMaxAge = DefaultAPISessionMaxAge

	cfg.OpenAI.MaxRequestsPerSecond = 0
	assert.Error(t, structValidator.Struct(cfg))
}

func TestDurationJSONRoundTrip(t *testing.T) {
	t.Parallel()
	d := Duration{90 * time.Second}

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var decoded Duration
	require.NoError(t, json.Unmarshal([]byte(`"2h45m"`), &decoded))
	assert.Equal(t, 2*time.Hour+45*time.Minute, decoded.Duration)

	require.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
	assert.Equal(t, 2*time.Hour+45*time.Minute, decoded.Duration)
}

func TestDurationScan(t *testing.T) {
	t.Parallel()
	var d Duration
	require.NoError(t, d.Scan("10m"))
	assert.Equal(t, 10*time.Minute, d.Duration)

	require.NoError(t, d.Scan([]byte("1h")))
	assert.Equal(t, time.Hour, d.Duration)

	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("not a duration"))

	v, err := Duration{5 * time.Second}.Value()
	require.NoError(t, err)
	assert.Equal(t, "5s", v)
}

func TestDBLogLevel(t *testing.T) {
	t.Parallel()
	var lvl DBLogLevel
	require.NoError(t, lvl.Set("debug"))
	assert.Equal(t, DBLogLevelDebug, lvl)

	require.NoError(t, lvl.Set("WARN"))
	assert.Equal(t, DBLogLevelWarn, lvl)

	assert.Error(t, lvl.Set("verbose"))
}
