package persistence

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// OpenSQLite opens (or creates) a SQLite database at path and brings its
// schema up to the latest migration.
//
// Grounded on the relational persistence option in
// ClusterCockpit-cc-backend/internal/repository/dbConnection.go and
// migration.go.
func OpenSQLite(path string, log *slog.Logger) (*sqlx.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("persistence: opening sqlite database: %w", err)
	}
	// sqlite does not support concurrent writers; serialize through one
	// connection rather than fighting the lock.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sqlx.DB, log *slog.Logger) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("persistence: sqlite migrate driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("persistence: loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("persistence: constructing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("persistence: running migrations: %w", err)
	}
	log.Info("database schema up to date")
	return nil
}
