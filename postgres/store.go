package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shogotsuneto/go-sql-streamstore"
	"github.com/shogotsuneto/go-sql-streamstore/internal/sqlstore"
)

// Compile-time interface compliance check
var _ streamstore.Backend = (*Store)(nil)

// Option configures a Store.
type Option = sqlstore.Option

// WithClock sets the clock used to stamp appended messages.
func WithClock(c streamstore.Clock) Option {
	return sqlstore.WithClock(c)
}

// Store is a PostgreSQL implementation of streamstore.Backend.
type Store struct {
	*sqlstore.Store
}

// NewStore creates a PostgreSQL store over an open pool. The tables must exist, see InitSchema.
func NewStore(db *sql.DB, tablePrefix string, opts ...Option) (*Store, error) {
	if tablePrefix == "" {
		return nil, errors.New("table prefix must not be empty")
	}
	return &Store{
		Store: sqlstore.NewStore(db, sqlstore.NewQueries(dialect, tablePrefix), opts...),
	}, nil
}

// Open connects to PostgreSQL with the given configuration.
func Open(ctx context.Context, config Config, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName, config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStore(db, config.TablePrefix, opts...)
}
