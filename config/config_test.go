package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gwd.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidDocument(t *testing.T) {
	path := writeConfig(t, `{
		"key": "GW1",
		"password": "secret",
		"platformMqttUri": "tcp://platform.example:1883",
		"localMqttUri": "tcp://local.example:1883",
		"platformMqttKeepAliveSeconds": 30
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "GW1", cfg.Key)
	require.Equal(t, 30*time.Second, cfg.KeepAlive())
}

func TestKeepAliveDefaultsTo60s(t *testing.T) {
	cfg := Config{}
	require.Equal(t, 60*time.Second, cfg.KeepAlive())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRequiresLocalMqttUriUnlessStandalone(t *testing.T) {
	cfg := Config{
		Key:             "GW1",
		Password:        "secret",
		PlatformMqttURI: "tcp://platform.example:1883",
	}
	require.Error(t, cfg.Validate())

	cfg.Standalone = true
	require.NoError(t, cfg.Validate())
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	err := (Config{}).Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "key")
	require.Contains(t, err.Error(), "password")
	require.Contains(t, err.Error(), "platformMqttUri")
	require.Contains(t, err.Error(), "localMqttUri")
}
