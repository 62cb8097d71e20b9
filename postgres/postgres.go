// Package postgres provides a PostgreSQL backend for the stream store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shogotsuneto/go-sql-streamstore/internal/sqlstore"
)

// DriverName is the database/sql driver used by this package.
const DriverName = "postgres"

// Config holds the connection settings of a PostgreSQL store.
type Config struct {
	// ConnectionString is a lib/pq connection string or URL
	ConnectionString string
	// TablePrefix names the tables: <prefix>_streams and <prefix>_messages
	TablePrefix string
}

// DefaultConfig returns a Config for a local database, overridden by STREAMSTORE_DSN and
// STREAMSTORE_TABLE_PREFIX when set.
func DefaultConfig() Config {
	cfg := Config{
		ConnectionString: "host=localhost port=5432 user=test password=test dbname=streamstore sslmode=disable",
		TablePrefix:      "streamstore",
	}
	if v := os.Getenv("STREAMSTORE_DSN"); v != "" {
		cfg.ConnectionString = v
	}
	if v := os.Getenv("STREAMSTORE_TABLE_PREFIX"); v != "" {
		cfg.TablePrefix = v
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ConnectionString == "" {
		return errors.New("connection string must not be empty")
	}
	if c.TablePrefix == "" {
		return errors.New("table prefix must not be empty")
	}
	return nil
}

var dialect = sqlstore.Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	LockClause:  " FOR UPDATE",
}

// InitSchema creates the necessary tables and indexes if they don't exist.
func InitSchema(ctx context.Context, db *sql.DB, tablePrefix string) error {
	if tablePrefix == "" {
		return errors.New("table prefix must not be empty")
	}
	streams := sqlstore.QuoteIdentifier(sqlstore.StreamsTable(tablePrefix))
	messages := sqlstore.QuoteIdentifier(sqlstore.MessagesTable(tablePrefix))

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id_internal BIGSERIAL PRIMARY KEY,
		id VARCHAR(1000) NOT NULL UNIQUE,
		version INT NOT NULL DEFAULT -1,
		position BIGINT NOT NULL DEFAULT -1,
		max_age INT NULL
	)`, streams),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position BIGSERIAL PRIMARY KEY,
		stream_id_internal BIGINT NOT NULL REFERENCES %s (id_internal),
		stream_version INT NOT NULL,
		message_id UUID NULL,
		created_utc TIMESTAMP WITH TIME ZONE NOT NULL,
		type VARCHAR(128) NOT NULL,
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
