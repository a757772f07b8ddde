package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// ExistingDevices tracks which subdevice keys the gateway believes are
// already registered with the platform, persisted as a small JSON file so
// a restart doesn't force every device through registration again.
//
// Grounded on original_source's JsonFileExistingDevicesRepository.
type ExistingDevices struct {
	mu   sync.Mutex
	path string
	keys []string
	log  *slog.Logger
}

type existingDevicesFile struct {
	DeviceKeys []string `json:"deviceKeys"`
}

// NewExistingDevices opens (or creates) path as the existing-devices
// bookkeeping file.
func NewExistingDevices(path string, log *slog.Logger) (*ExistingDevices, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &ExistingDevices{path: path, log: log.With("component", "persistence", "file", path)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := d.saveLocked(); err != nil {
			return nil, err
		}
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ExistingDevices) load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	content, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("persistence: reading existing devices file: %w", err)
	}

	var f existingDevicesFile
	if err := json.Unmarshal(content, &f); err != nil {
		d.log.Error("failed to parse existing devices file", "error", err)
		return nil
	}
	d.keys = f.DeviceKeys
	return nil
}

// saveLocked writes the current key set to disk. Called with d.mu held.
func (d *ExistingDevices) saveLocked() error {
	content, err := json.Marshal(existingDevicesFile{DeviceKeys: d.keys})
	if err != nil {
		return fmt.Errorf("persistence: marshaling existing devices: %w", err)
	}
	if err := os.WriteFile(d.path, content, 0o644); err != nil {
		return fmt.Errorf("persistence: writing existing devices file: %w", err)
	}
	return nil
}

// AddDeviceKey records key as registered, a no-op if already present.
func (d *ExistingDevices) AddDeviceKey(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, k := range d.keys {
		if k == key {
			return nil
		}
	}
	d.keys = append(d.keys, key)
	return d.saveLocked()
}

// RemoveDeviceKey forgets key, a no-op if not present.
func (d *ExistingDevices) RemoveDeviceKey(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			return d.saveLocked()
		}
	}
	return nil
}

// DeviceKeys returns a snapshot of all recorded device keys.
func (d *ExistingDevices) DeviceKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Contains reports whether key was previously recorded.
func (d *ExistingDevices) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range d.keys {
		if k == key {
			return true
		}
	}
	return false
}
