package filetransfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/pipeline"
)

// PublishFileList publishes the current file inventory, called after
// every mutation (upload, download, delete, purge) so subscribers never
// see a stale list.
func (m *Manager) PublishFileList(ctx context.Context) error {
	records, err := m.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("filetransfer: listing files: %w", err)
	}

	entries := make([]wire.FileListEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, wire.FileListEntry{Name: r.Name, Size: r.Size, Hash: r.Hash})
	}

	topic, payload, err := m.tr.MakeFileList(entries)
	if err != nil {
		return fmt.Errorf("filetransfer: encoding file list: %w", err)
	}
	return m.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// Delete removes name from both the on-disk store and the repository,
// then republishes the file list.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.repo.Delete(ctx, name); err != nil {
		return fmt.Errorf("filetransfer: deleting file record %s: %w", name, err)
	}
	path := filepath.Join(m.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filetransfer: removing file %s: %w", path, err)
	}
	return m.PublishFileList(ctx)
}

// Purge removes every file in the inventory.
func (m *Manager) Purge(ctx context.Context) error {
	records, err := m.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("filetransfer: listing files to purge: %w", err)
	}
	for _, r := range records {
		if err := m.repo.Delete(ctx, r.Name); err != nil {
			return fmt.Errorf("filetransfer: deleting file record %s: %w", r.Name, err)
		}
		path := filepath.Join(m.dir, r.Name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("filetransfer: removing file %s: %w", path, err)
		}
	}
	return m.PublishFileList(ctx)
}
