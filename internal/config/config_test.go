package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "./web", cfg.Server.WebFilesDir)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "GPIO18", cfg.DMX.DataPin)
	assert.Equal(t, "GPIO17", cfg.DMX.EnablePin)
	assert.Equal(t, "100us", cfg.DMX.Break)
	assert.Equal(t, "12us", cfg.DMX.MarkAfterBreak)
	assert.Equal(t, "4us", cfg.DMX.Bit)
	assert.Equal(t, "sounds", cfg.SoundsDir)
	assert.Equal(t, "sequences", cfg.SequencesDir)
	assert.Equal(t, "schedules.json", cfg.SchedulesFile)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
}

func TestLoadOverridesAndFillsGaps(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": " 9090 "},
		"dmx": {"data_pin": "GPIO21", "bit": "8us"},
		"mqtt": {"enabled": true, "broker": "tcp://10.0.0.5:1883"},
		"sounds_dir": "/media/sounds"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port, "sanitize trims whitespace")
	assert.Equal(t, "GPIO21", cfg.DMX.DataPin)
	assert.Equal(t, "8us", cfg.DMX.Bit)
	assert.Equal(t, "100us", cfg.DMX.Break, "unset fields keep defaults")
	assert.Equal(t, "/media/sounds", cfg.SoundsDir)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://10.0.0.5:1883", cfg.MQTT.Broker)
	assert.Equal(t, "dmx-sequenzer", cfg.MQTT.ClientID)
}

func TestInvalidTimingRejected(t *testing.T) {
	path := writeConfig(t, `{"dmx": {"break": "fast"}}`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid DMX timing")
}

func TestMalformedJSONRejected(t *testing.T) {
	path := writeConfig(t, `{"server": `)
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to decode json")
}
