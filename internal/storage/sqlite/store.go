// Package sqlite provides SQLite implementations of the storage interfaces.
//
// Vector similarity is computed in Go over embeddings loaded from BLOB
// columns. That is fine for local deployments and tests; for several hundred
// thousand memories per user, use the postgres backend with pgvector's
// indexed ANN search instead.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps a SQLite connection shared by the stores of one deployment.
type DB struct {
	conn *sql.DB
}

// Open opens a SQLite database, configures WAL mode, and creates the schema.
// The dsn may be a file path or ":memory:" for tests.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Conn returns the underlying database connection.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Close releases the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
