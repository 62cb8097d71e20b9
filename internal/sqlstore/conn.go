package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shogotsuneto/go-sql-streamstore"
)

// Compile-time interface compliance check
var _ streamstore.Conn = (*Conn)(nil)

// Conn serves the read engine over a single pooled connection.
type Conn struct {
	conn    *sql.Conn
	queries Queries
}

// OpenConn takes a connection out of the pool of db.
func OpenConn(ctx context.Context, db *sql.DB, queries Queries) (*Conn, error) {
	c, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{conn: c, queries: queries}, nil
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// StreamHeader looks up a stream without creating it.
func (c *Conn) StreamHeader(ctx context.Context, streamKey string) (streamstore.StreamHeader, bool, error) {
	return queryHeader(ctx, c.conn, c.queries.StreamHeader, streamKey)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryHeader(ctx context.Context, q queryRower, query, streamKey string) (streamstore.StreamHeader, bool, error) {
	var (
		header = streamstore.StreamHeader{Key: streamKey}
		maxAge sql.NullInt64
	)
	err := q.QueryRowContext(ctx, query, streamKey).
		Scan(&header.InternalID, &header.Version, &header.Position, &maxAge)
	if errors.Is(err, sql.ErrNoRows) {
		return streamstore.StreamHeader{}, false, nil
	}
	if err != nil {
		return streamstore.StreamHeader{}, false, fmt.Errorf("failed to query stream: %w", err)
	}
	if maxAge.Valid {
		v := int(maxAge.Int64)
		header.MaxAge = &v
	}
	return header, true, nil
}

// ResolvePosition queries the message log for the position a scan starts from.
func (c *Conn) ResolvePosition(ctx context.Context, internalID int64, dir streamstore.Direction, version streamstore.Version) (int64, bool, error) {
	var (
		position sql.NullInt64
		row      *sql.Row
	)
	switch {
	case dir == streamstore.Forward:
		row = c.conn.QueryRowContext(ctx, c.queries.PositionForward, internalID, version.Int())
	case version.IsEnd():
		row = c.conn.QueryRowContext(ctx, c.queries.PositionLast, internalID)
	default:
		row = c.conn.QueryRowContext(ctx, c.queries.PositionBackward, internalID, version.Int())
	}
	if err := row.Scan(&position); err != nil {
		return 0, false, fmt.Errorf("failed to query position: %w", err)
	}
	return position.Int64, position.Valid, nil
}

// Remaining counts the messages on the scan side of position.
func (c *Conn) Remaining(ctx context.Context, internalID int64, dir streamstore.Direction, position int64) (int, error) {
	query := c.queries.RemainingForward
	if dir == streamstore.Backward {
		query = c.queries.RemainingBackward
	}
	var n int
	if err := c.conn.QueryRowContext(ctx, query, internalID, position).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (c *Conn) scanQuery(dir streamstore.Direction, prefetch bool) string {
	switch {
	case dir == streamstore.Forward && prefetch:
		return c.queries.ScanForwardData
	case dir == streamstore.Forward:
		return c.queries.ScanForward
	case prefetch:
		return c.queries.ScanBackwardData
	default:
		return c.queries.ScanBackward
	}
}

// Scan reads all rows of the range before returning so the connection is free for the
// next statement.
func (c *Conn) Scan(ctx context.Context, req streamstore.ScanRequest) ([]streamstore.Row, error) {
	rows, err := c.conn.QueryContext(ctx, c.scanQuery(req.Direction, req.Prefetch), req.InternalID, req.Position, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var result []streamstore.Row
	for rows.Next() {
		var (
			row     streamstore.Row
			created Timestamp
		)
		err := rows.Scan(
			&row.MessageID,
			&row.StreamVersion,
			&row.Position,
			&created,
			&row.Type,
			&row.JSONMetadata,
			&row.JSONData,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		row.CreatedUTC = created.Time
		result = append(result, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// ReadJSONData reads the payload of one message.
func (c *Conn) ReadJSONData(ctx context.Context, streamKey string, version int) (string, bool, error) {
	var data sql.NullString
	err := c.conn.QueryRowContext(ctx, c.queries.JSONData, streamKey, version).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query message data: %w", err)
	}
	return data.String, true, nil
}
