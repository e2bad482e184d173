// Package postgres implements the outreach data repositories over PostgreSQL.
//
// Each entity gets its own repository type constructed over a shared *sql.DB.
// Counter mutations (send counts, proxy streaks, daily stats) are single
// atomic UPDATE/UPSERT statements so concurrent campaign workers never lose
// increments.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrNotFound is returned by repositories without a dedicated service-layer
// sentinel when the requested row does not exist.
var ErrNotFound = errors.New("postgres: row not found")

// rowScanner abstracts *sql.Row and *sql.Rows so each entity's scan helper
// serves both single-row and list queries.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Open connects to PostgreSQL and verifies the connection before returning.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
