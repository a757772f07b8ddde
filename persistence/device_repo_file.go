package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileDeviceRepo is a DeviceRepo backed by a single JSON file, suitable
// for gateways with a small, infrequently-changing device population.
// Grounded on the same JSON-file repository idiom as ExistingDevices.
type FileDeviceRepo struct {
	mu   sync.Mutex
	path string
	devs map[string]Device
}

// NewFileDeviceRepo opens (or creates) path as a device repository.
func NewFileDeviceRepo(path string) (*FileDeviceRepo, error) {
	r := &FileDeviceRepo{path: path, devs: make(map[string]Device)}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := r.saveLocked(); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileDeviceRepo) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("persistence: reading device repo file: %w", err)
	}
	var list []Device
	if err := json.Unmarshal(content, &list); err != nil {
		return fmt.Errorf("persistence: parsing device repo file: %w", err)
	}
	for _, d := range list {
		r.devs[d.Key] = d
	}
	return nil
}

func (r *FileDeviceRepo) saveLocked() error {
	list := make([]Device, 0, len(r.devs))
	for _, d := range r.devs {
		list = append(list, d)
	}
	content, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("persistence: marshaling device repo: %w", err)
	}
	if err := os.WriteFile(r.path, content, 0o644); err != nil {
		return fmt.Errorf("persistence: writing device repo file: %w", err)
	}
	return nil
}

func (r *FileDeviceRepo) Save(ctx context.Context, d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devs[d.Key] = d
	return r.saveLocked()
}

func (r *FileDeviceRepo) Get(ctx context.Context, key string) (Device, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devs[key]
	return d, ok, nil
}

func (r *FileDeviceRepo) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devs[key]; !ok {
		return nil
	}
	delete(r.devs, key)
	return r.saveLocked()
}

func (r *FileDeviceRepo) All(ctx context.Context) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, 0, len(r.devs))
	for _, d := range r.devs {
		out = append(out, d)
	}
	return out, nil
}
