// Package sqlite provides a SQLite backend for the stream store on the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/shogotsuneto/go-sql-streamstore"
	"github.com/shogotsuneto/go-sql-streamstore/internal/sqlstore"
	_ "modernc.org/sqlite" // SQLite driver
)

// DriverName is the database/sql driver used by this package.
const DriverName = "sqlite"

// Compile-time interface compliance check
var _ streamstore.Backend = (*Store)(nil)

// Config holds the settings of a SQLite store.
type Config struct {
	// Path is the database file
	Path string
	// TablePrefix names the tables: <prefix>_streams and <prefix>_messages
	TablePrefix string
}

// DefaultConfig returns a Config for ./streamstore.db, overridden by STREAMSTORE_DSN and
// STREAMSTORE_TABLE_PREFIX when set.
func DefaultConfig() Config {
	cfg := Config{
		Path:        "streamstore.db",
		TablePrefix: "streamstore",
	}
	if v := os.Getenv("STREAMSTORE_DSN"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("STREAMSTORE_TABLE_PREFIX"); v != "" {
		cfg.TablePrefix = v
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("path must not be empty")
	}
	if c.TablePrefix == "" {
		return errors.New("table prefix must not be empty")
	}
	return nil
}

// DSN returns the data source name for a database file. Write transactions take the
// database lock on BEGIN and readers wait for it instead of failing.
func DSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

var dialect = sqlstore.Dialect{
	Placeholder: func(int) string { return "?" },
	EncodeTime:  sqlstore.UnixNano,
}

// Option configures a Store.
type Option = sqlstore.Option

// WithClock sets the clock used to stamp appended messages.
func WithClock(c streamstore.Clock) Option {
	return sqlstore.WithClock(c)
}

// Store is a SQLite implementation of streamstore.Backend.
type Store struct {
	*sqlstore.Store
}

// NewStore creates a SQLite store over an open pool. The tables must exist, see InitSchema.
func NewStore(db *sql.DB, tablePrefix string, opts ...Option) (*Store, error) {
	if tablePrefix == "" {
		return nil, errors.New("table prefix must not be empty")
	}
	return &Store{
		Store: sqlstore.NewStore(db, sqlstore.NewQueries(dialect, tablePrefix), opts...),
	}, nil
}

// Open opens the database file, creating the schema when it is missing.
func Open(ctx context.Context, config Config, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName, DSN(config.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := InitSchema(ctx, db, config.TablePrefix); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db, config.TablePrefix, opts...)
}

// InitSchema creates the necessary tables and indexes if they don't exist.
func InitSchema(ctx context.Context, db *sql.DB, tablePrefix string) error {
	if tablePrefix == "" {
		return errors.New("table prefix must not be empty")
	}
	streams := sqlstore.QuoteIdentifier(sqlstore.StreamsTable(tablePrefix))
	messages := sqlstore.QuoteIdentifier(sqlstore.MessagesTable(tablePrefix))

	// AUTOINCREMENT keeps positions from being reused.
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id_internal INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		version INTEGER NOT NULL DEFAULT -1,
		position INTEGER NOT NULL DEFAULT -1,
		max_age INTEGER NULL
	)`, streams),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_id_internal INTEGER NOT NULL REFERENCES %s (id_internal),
		stream_version INTEGER NOT NULL,
		message_id TEXT NULL,
		created_utc INTEGER NOT NULL,
		type TEXT NOT NULL,
		json_metadata TEXT NULL,
		json_data TEXT NOT NULL
	)`, messages, streams),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (stream_id_internal, stream_version)`,
			sqlstore.QuoteIdentifier("idx_"+sqlstore.MessagesTable(tablePrefix)+"_stream_version"), messages),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
