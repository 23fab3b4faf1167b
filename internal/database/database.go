// Package database provides database access for the operation journal
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB is the journal's connection pool
type DB struct {
	*sql.DB
}

// pingTimeout bounds the connectivity check in New
const pingTimeout = 5 * time.Second

// New opens the journal database and checks it is reachable.
func New(driver, dsn string) (*DB, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w", driver, err)
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("journal database unreachable: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Migrate creates all required tables
func (db *DB) Migrate() error {
	schema := `
	-- One row per billing API call made by the CLI
	CREATE TABLE IF NOT EXISTS operations (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		service VARCHAR(255) NOT NULL,
		resource VARCHAR(50) NOT NULL,
		verb VARCHAR(20) NOT NULL,
		method VARCHAR(10) NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_operations_resource ON operations(resource, verb);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	return nil
}

// Reset drops the journal table
func (db *DB) Reset() error {
	_, err := db.Exec(`DROP TABLE IF EXISTS operations CASCADE;`)
	return err
}

// CleanData empties the journal, keeping its schema
func (db *DB) CleanData() error {
	_, err := db.Exec(`TRUNCATE TABLE operations;`)
	return err
}
