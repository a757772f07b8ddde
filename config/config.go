// Package config loads and validates the gateway's single JSON
// configuration document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// defaultKeepAliveSeconds is used when the document omits
// platformMqttKeepAliveSeconds.
const defaultKeepAliveSeconds = 60

// Config is the gateway's on-disk configuration document.
type Config struct {
	Key                          string `json:"key"`
	Password                     string `json:"password"`
	PlatformMqttURI              string `json:"platformMqttUri"`
	LocalMqttURI                 string `json:"localMqttUri"`
	PlatformTrustStore           string `json:"platformTrustStore"`
	PlatformMqttKeepAliveSeconds uint16 `json:"platformMqttKeepAliveSeconds"`

	// Standalone disables the requirement for localMqttUri, for a
	// deployment that never bridges to a local subdevice network.
	Standalone bool `json:"standalone"`

	DataDir                string `json:"dataDir"`
	DownloadDir            string `json:"downloadDir"`
	FirmwareVersionFile    string `json:"firmwareVersionFile"`
	CurrentFirmwareVersion string `json:"currentFirmwareVersion"`
}

// KeepAlive returns the keep-alive interval, defaulting to 60s.
func (c Config) KeepAlive() time.Duration {
	if c.PlatformMqttKeepAliveSeconds == 0 {
		return defaultKeepAliveSeconds * time.Second
	}
	return time.Duration(c.PlatformMqttKeepAliveSeconds) * time.Second
}

// Load reads and validates the configuration document at path. A missing
// file, unreadable file, or missing required field is a fatal start-up
// error, returned as err.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the required fields, distinguishing standalone and
// bridged deployments: localMqttUri is only required when the gateway
// bridges to a local broker.
func (c Config) Validate() error {
	var missing []string
	if c.Key == "" {
		missing = append(missing, "key")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.PlatformMqttURI == "" {
		missing = append(missing, "platformMqttUri")
	}
	if !c.Standalone && c.LocalMqttURI == "" {
		missing = append(missing, "localMqttUri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required field(s): %v", missing)
	}
	return nil
}
