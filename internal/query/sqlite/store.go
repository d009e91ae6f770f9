package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

type openMode string

const (
	// modeCreate opens read-write and creates the file when missing.
	modeCreate    openMode = ""
	modeReadWrite openMode = "rw"
	modeReadOnly  openMode = "ro"
)

func dataSourceName(path string, mode openMode) string {
	if mode == modeCreate {
		return path + "?" + busyTimeoutPragma
	}
	return "file:" + path + "?mode=" + string(mode) + "&" + busyTimeoutPragma
}

// open returns a single-connection pool that has already been pinged.
func open(ctx context.Context, path string, mode openMode) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	db, err := sql.Open(driverName, dataSourceName(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store %q: %w", path, err)
	}
	return db, nil
}

// Open exposes a read-write connection to the store for loaders that write
// into it, such as the dataset importer.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return open(ctx, path, modeCreate)
}

// Probe checks that path is an existing, readable SQLite store without
// creating it.
func Probe(ctx context.Context, path string) error {
	db, err := open(ctx, path, modeReadWrite)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("probe sqlite store %q: %w", path, err)
	}
	// A non-database file opens fine and only fails on first catalog read.
	var tables int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&tables); err != nil {
		return fmt.Errorf("probe sqlite store %q: %w", path, err)
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
