package persistence

import "context"

// FileRecord is one entry in the gateway's local file inventory, built up
// as firmware/data files are received over the chunked transfer protocol.
type FileRecord struct {
	Name string `db:"name"`
	Size int64  `db:"size"`
	Hash string `db:"hash"` // hex-encoded SHA-256
}

// FileRepo tracks files the gateway has fully received and made available
// for listing/serving to subdevices.
type FileRepo interface {
	Save(ctx context.Context, f FileRecord) error
	Get(ctx context.Context, name string) (FileRecord, bool, error)
	Delete(ctx context.Context, name string) error
	All(ctx context.Context) ([]FileRecord, error)
}
