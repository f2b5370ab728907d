// Package storage persists collected deck records in SQLite so that
// reports and exports can run without the batch checkpoint.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the database connection and provides access to the record store.
type DB struct {
	conn *sql.DB
}

// Config holds database configuration settings.
type Config struct {
	// Path is the file path to the SQLite database.
	// Use ":memory:" for an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	// Default: 2
	MaxIdleConns int

	// ConnMaxLifetime sets the maximum amount of time a connection may be reused.
	// Default: 5 minutes
	ConnMaxLifetime time.Duration

	// BusyTimeout sets how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode.
	// Default: WAL
	JournalMode string

	// Synchronous sets the SQLite synchronous mode.
	// Default: NORMAL
	Synchronous string

	// AutoMigrate runs pending migrations on Open.
	AutoMigrate bool
}

// DefaultConfig returns a Config with default values for path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:            path,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
	}
}

// dsn builds the modernc connection string with pragmas applied to every
// new connection.
func (c *Config) dsn() string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
		"_pragma=foreign_keys(1)",
	}
	if c.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=journal_mode(%s)", c.JournalMode))
	}
	if c.Synchronous != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=synchronous(%s)", c.Synchronous))
	}
	return c.Path + "?" + strings.Join(pragmas, "&")
}

// Open creates a database connection with the given configuration.
func Open(config *Config) (*DB, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if config.AutoMigrate {
		if config.Path == ":memory:" {
			return nil, fmt.Errorf("auto-migrate requires a database file")
		}
		if err := migrateUp(config.Path); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close database after ping error: %w (original error: %v)", closeErr, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

func migrateUp(path string) error {
	mgr, err := NewMigrationManager(path)
	if err != nil {
		return fmt.Errorf("failed to create migration manager: %w", err)
	}
	if err := mgr.Up(); err != nil {
		if closeErr := mgr.Close(); closeErr != nil {
			return fmt.Errorf("failed to close migration manager after error: %w (original error: %v)", closeErr, err)
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := mgr.Close(); err != nil {
		return fmt.Errorf("failed to close migration manager: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Records returns the deck record store backed by this database.
func (db *DB) Records() *RecordStore {
	return NewRecordStore(db)
}
