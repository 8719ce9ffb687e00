package graph

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite connection pool used by the Store. The pool is safe
// for concurrent use across logically independent query sessions; each
// statement acquires and releases a connection around its unit of work.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// DBConfig configures the database connection pool.
type DBConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

const (
	// DefaultMaxOpenConns is suitable for moderate workloads.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is 40% of DefaultMaxOpenConns for good reuse.
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime prevents stale connections.
	DefaultConnMaxLifetime = time.Hour
	// DefaultConnMaxIdleTime releases idle connections after inactivity.
	DefaultConnMaxIdleTime = 30 * time.Minute
)

// DefaultDBConfig returns a pool configuration suitable for moderate
// workloads.
func DefaultDBConfig(path string) DBConfig {
	return DBConfig{
		Path:            path,
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
	}
}

// Validate checks the configuration values.
func (c DBConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: db path is required", ErrValidation)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("%w: MaxOpenConns must be at least 1, got %d", ErrValidation, c.MaxOpenConns)
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: MaxIdleConns (%d) must be between 0 and MaxOpenConns (%d)",
			ErrValidation, c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// OpenDB opens the SQLite database, applies pool settings, and runs the
// idempotent schema migration. Connection failures surface as
// ErrStoreUnavailable and are not retried here.
func OpenDB(config DBConfig) (*DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=normal", config.Path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, config.Path, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, config.Path, err)
	}

	gdb := &DB{db: db, path: config.Path}
	if err := gdb.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return gdb, nil
}

// Migrate executes the embedded schema. Safe to call more than once.
func (d *DB) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("migrate schema on %s: %w", d.path, err)
	}
	return nil
}

// SchemaVersion returns the highest applied schema version.
func (d *DB) SchemaVersion() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var version int
	if err := d.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("schema version on %s: %w", d.path, err)
	}
	return version, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) beginTx() (*sql.Tx, error) {
	return d.db.Begin()
}
