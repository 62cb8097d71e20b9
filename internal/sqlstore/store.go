package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shogotsuneto/go-sql-streamstore"
)

// Compile-time interface compliance check
var _ streamstore.Backend = (*Store)(nil)

// Store is a Backend over a database/sql pool. It also carries the append path used to
// populate streams.
type Store struct {
	db      *sql.DB
	queries Queries
	clock   streamstore.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp appended messages.
func WithClock(c streamstore.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStore creates a store over db using the given statements.
func NewStore(db *sql.DB, queries Queries, opts ...Option) *Store {
	s := &Store{db: db, queries: queries, clock: streamstore.ClockFunc(time.Now)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Open acquires a dedicated connection for one read.
func (s *Store) Open(ctx context.Context) (streamstore.Conn, error) {
	c, err := OpenConn(ctx, s.db, s.queries)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes the database pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendToStream appends messages to a stream, creating it when absent, and returns the
// header after the append.
func (s *Store) AppendToStream(ctx context.Context, streamKey string, expectedVersion int, messages ...streamstore.NewStreamMessage) (streamstore.StreamHeader, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return streamstore.StreamHeader{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.queries.EnsureStream, streamKey); err != nil {
		return streamstore.StreamHeader{}, fmt.Errorf("failed to create stream: %w", err)
	}

	// Lock the stream row to serialize appends
	var (
		internalID int64
		current    int
	)
	if err := tx.QueryRowContext(ctx, s.queries.LockStream, streamKey).Scan(&internalID, &current); err != nil {
		return streamstore.StreamHeader{}, fmt.Errorf("failed to lock stream: %w", err)
	}

	if err := streamstore.CheckExpectedVersion(streamKey, expectedVersion, current); err != nil {
		return streamstore.StreamHeader{}, err
	}

	if len(messages) > 0 {
		if err := s.insertMessages(ctx, tx, internalID, current, messages); err != nil {
			return streamstore.StreamHeader{}, err
		}
	}

	header, ok, err := queryHeader(ctx, tx, s.queries.StreamHeader, streamKey)
	if err != nil {
		return streamstore.StreamHeader{}, err
	}
	if !ok {
		return streamstore.StreamHeader{}, errors.New("stream vanished during append")
	}

	if err := tx.Commit(); err != nil {
		return streamstore.StreamHeader{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return header, nil
}

func (s *Store) insertMessages(ctx context.Context, tx *sql.Tx, internalID int64, current int, messages []streamstore.NewStreamMessage) error {
	stmt, err := tx.PrepareContext(ctx, s.queries.InsertMessage)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	created := s.queries.encodeTime(s.clock.Now().UTC())
	for i, m := range messages {
		var messageID any
		if m.MessageID != uuid.Nil {
			messageID = m.MessageID.String()
		}
		var metadata any
		if m.JSONMetadata != "" {
			metadata = m.JSONMetadata
		}

		version := current + 1 + i
		_, err := stmt.ExecContext(ctx, internalID, version, messageID, created, m.Type, metadata, m.JSONData)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	var position int64
	if err := tx.QueryRowContext(ctx, s.queries.LastPosition, internalID).Scan(&position); err != nil {
		return fmt.Errorf("failed to get last position: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.queries.UpdateStream, current+len(messages), position, internalID); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// SetStreamMaxAge sets the retention window of a stream in seconds, creating the stream
// when absent. A nil maxAge disables expiration.
func (s *Store) SetStreamMaxAge(ctx context.Context, streamKey string, maxAge *int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.queries.EnsureStream, streamKey); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	var value any
	if maxAge != nil {
		value = *maxAge
	}
	if _, err := tx.ExecContext(ctx, s.queries.UpdateMaxAge, value, streamKey); err != nil {
		return fmt.Errorf("failed to set max age: %w", err)
	}
	return tx.Commit()
}
