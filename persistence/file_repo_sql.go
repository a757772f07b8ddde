package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// SQLFileRepo is a FileRepo backed by a relational database.
type SQLFileRepo struct {
	db *sqlx.DB
}

// NewSQLFileRepo wraps an already-migrated database handle.
func NewSQLFileRepo(db *sqlx.DB) *SQLFileRepo {
	return &SQLFileRepo{db: db}
}

func (r *SQLFileRepo) Save(ctx context.Context, f FileRecord) error {
	q, args, err := sq.Insert("files").
		Columns("name", "size", "hash").
		Values(f.Name, f.Size, f.Hash).
		Suffix("ON CONFLICT(name) DO UPDATE SET size = excluded.size, hash = excluded.hash").
		ToSql()
	if err != nil {
		return fmt.Errorf("persistence: building file upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("persistence: saving file %s: %w", f.Name, err)
	}
	return nil
}

func (r *SQLFileRepo) Get(ctx context.Context, name string) (FileRecord, bool, error) {
	q, args, err := sq.Select("name", "size", "hash").From("files").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("persistence: building file select: %w", err)
	}

	var f FileRecord
	err = r.db.GetContext(ctx, &f, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("persistence: loading file %s: %w", name, err)
	}
	return f, true, nil
}

func (r *SQLFileRepo) Delete(ctx context.Context, name string) error {
	q, args, err := sq.Delete("files").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return fmt.Errorf("persistence: building file delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("persistence: deleting file %s: %w", name, err)
	}
	return nil
}

func (r *SQLFileRepo) All(ctx context.Context) ([]FileRecord, error) {
	q, args, err := sq.Select("name", "size", "hash").From("files").OrderBy("name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("persistence: building file list: %w", err)
	}

	var files []FileRecord
	if err := r.db.SelectContext(ctx, &files, q, args...); err != nil {
		return nil, fmt.Errorf("persistence: listing files: %w", err)
	}
	return files, nil
}
