// Package db opens the SQLite database that stores translation runs and their
// API calls, and applies its schema migrations.
package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA cache_size=1000",
	"PRAGMA temp_store=memory",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at dbPath, creating parent directories
func Open(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return db, nil
}

// OpenAndMigrate opens dbPath and applies every pending migration
func OpenAndMigrate(ctx context.Context, dbPath string, migrations []Migration) (*sqlx.DB, error) {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := NewMigrationRunner(db).Run(ctx, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies the WAL pragmas. A single connection serialises writers
// from concurrent noise levels.
func Configure(ctx context.Context, db *sqlx.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	return VerifyConfiguration(db)
}

// expectedPragmas are the values Configure must leave in place
var expectedPragmas = []struct {
	name string
	want string
}{
	{name: "journal_mode", want: "wal"},
	{name: "synchronous", want: "1"},
	{name: "foreign_keys", want: "1"},
}

// VerifyConfiguration checks WAL mode, NORMAL sync and foreign keys
func VerifyConfiguration(db *sqlx.DB) error {
	for _, p := range expectedPragmas {
		var got string
		if err := db.Get(&got, "PRAGMA "+p.name); err != nil {
			return errors.Wrapf(err, "failed to query %s", p.name)
		}
		if strings.ToLower(got) != p.want {
			return errors.Errorf("expected %s=%s, got %s", p.name, p.want, got)
		}
	}
	return nil
}
