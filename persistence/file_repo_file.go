package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileFileRepo is a FileRepo backed by a single JSON file, the file-
// inventory counterpart to FileDeviceRepo.
type FileFileRepo struct {
	mu    sync.Mutex
	path  string
	files map[string]FileRecord
}

// NewFileFileRepo opens (or creates) path as a file-record repository.
func NewFileFileRepo(path string) (*FileFileRepo, error) {
	r := &FileFileRepo{path: path, files: make(map[string]FileRecord)}
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

func (r *FileFileRepo) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("persistence: reading file repo file: %w", err)
	}
	var list []FileRecord
	if err := json.Unmarshal(content, &list); err != nil {
		return fmt.Errorf("persistence: parsing file repo file: %w", err)
	}
	for _, f := range list {
		r.files[f.Name] = f
	}
	return nil
}

func (r *FileFileRepo) saveLocked() error {
	list := make([]FileRecord, 0, len(r.files))
	for _, f := range r.files {
		list = append(list, f)
	}
	content, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("persistence: marshaling file repo: %w", err)
	}
	if err := os.WriteFile(r.path, content, 0o644); err != nil {
		return fmt.Errorf("persistence: writing file repo file: %w", err)
	}
	return nil
}

func (r *FileFileRepo) Save(ctx context.Context, f FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[f.Name] = f
	return r.saveLocked()
}

func (r *FileFileRepo) Get(ctx context.Context, name string) (FileRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[name]
	return f, ok, nil
}

func (r *FileFileRepo) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[name]; !ok {
		return nil
	}
	delete(r.files, name)
	return r.saveLocked()
}

func (r *FileFileRepo) All(ctx context.Context) ([]FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FileRecord, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f)
	}
	return out, nil
}
