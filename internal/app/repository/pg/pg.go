// Package pg opens the Postgres-backed store.
package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"voxmeter/internal/app/repository"
)

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

// New opens a Postgres connection pool. sql.Open does not dial; the first
// query surfaces connection errors.
func New(connectionString string) (*repository.SQLStore, error) {
	db, err := sql.Open(DriverName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return repository.NewSQLStore(db, DriverName), nil
}
