// Package db pkg/db/db.go provides MariaDB access for the historical store.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MariaDB driver
)

// DB represents the database connection and operations.
type DB struct {
	*sql.DB
}

// DSN builds the driver connection string for the historical store.
func DSN(user, password, host string, port int, schema string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", user, password, host, port, schema)
}

// Open connects to the historical store and verifies the connection.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToOpen, err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToPing, err)
	}

	return &DB{sqlDB}, nil
}
