// Package sqlite opens the SQLite-backed store used for local runs.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"voxmeter/internal/app/repository"
)

// DriverName is the database/sql driver registered by go-sqlite3.
const DriverName = "sqlite3"

// New opens the SQLite database at path (or a file: DSN).
func New(path string) (*repository.SQLStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	return repository.NewSQLStore(db, DriverName), nil
}
