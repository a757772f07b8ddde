package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// SQLDeviceRepo is a DeviceRepo backed by a relational database, for
// gateways managing enough subdevices that a flat JSON file becomes
// unwieldy.
//
// Grounded on the squirrel query-building idiom in
// ClusterCockpit-cc-backend/internal/repository/job.go.
type SQLDeviceRepo struct {
	db *sqlx.DB
}

// NewSQLDeviceRepo wraps an already-migrated database handle.
func NewSQLDeviceRepo(db *sqlx.DB) *SQLDeviceRepo {
	return &SQLDeviceRepo{db: db}
}

func (r *SQLDeviceRepo) Save(ctx context.Context, d Device) error {
	q, args, err := sq.Insert("devices").
		Columns("key", "name", "template_reference", "manifest_json").
		Values(d.Key, d.Name, d.TemplateReference, d.ManifestJSON).
		Suffix("ON CONFLICT(key) DO UPDATE SET name = excluded.name, template_reference = excluded.template_reference, manifest_json = excluded.manifest_json").
		ToSql()
	if err != nil {
		return fmt.Errorf("persistence: building device upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("persistence: saving device %s: %w", d.Key, err)
	}
	return nil
}

func (r *SQLDeviceRepo) Get(ctx context.Context, key string) (Device, bool, error) {
	q, args, err := sq.Select("key", "name", "template_reference", "manifest_json").
		From("devices").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return Device{}, false, fmt.Errorf("persistence: building device select: %w", err)
	}

	var d Device
	err = r.db.GetContext(ctx, &d, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, fmt.Errorf("persistence: loading device %s: %w", key, err)
	}
	return d, true, nil
}

func (r *SQLDeviceRepo) Delete(ctx context.Context, key string) error {
	q, args, err := sq.Delete("devices").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("persistence: building device delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("persistence: deleting device %s: %w", key, err)
	}
	return nil
}

func (r *SQLDeviceRepo) All(ctx context.Context) ([]Device, error) {
	q, args, err := sq.Select("key", "name", "template_reference", "manifest_json").
		From("devices").OrderBy("key").ToSql()
	if err != nil {
		return nil, fmt.Errorf("persistence: building device list: %w", err)
	}

	var devs []Device
	if err := r.db.SelectContext(ctx, &devs, q, args...); err != nil {
		return nil, fmt.Errorf("persistence: listing devices: %w", err)
	}
	return devs, nil
}
