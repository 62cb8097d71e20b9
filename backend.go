package streamstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Backend is the capability every storage engine provides to the read engine.
// Implementations exist for PostgreSQL, SQLite and memory.
type Backend interface {
	// Open acquires a connection. The caller must Close it.
	Open(ctx context.Context) (Conn, error)
	// Close releases the resources held by the backend.
	Close() error
}

// Conn is a single connection to the backing store. A Conn is used by one goroutine at a time.
type Conn interface {
	// StreamHeader looks up a stream. It never creates one; ok is false for unknown keys.
	StreamHeader(ctx context.Context, streamKey string) (header StreamHeader, ok bool, err error)

	// ResolvePosition finds the position a scan starts from.
	// Forward: the lowest position whose version is >= version.
	// Backward: the highest position whose version is <= version, or the highest position
	// of the stream for the end sentinel.
	// ok is false when no message qualifies.
	ResolvePosition(ctx context.Context, internalID int64, dir Direction, version Version) (position int64, ok bool, err error)

	// Remaining counts the messages of the stream on the scan side of position, inclusive.
	Remaining(ctx context.Context, internalID int64, dir Direction, position int64) (int, error)

	// Scan returns up to req.Limit rows ordered by position in req.Direction.
	// All rows are read before Scan returns.
	Scan(ctx context.Context, req ScanRequest) ([]Row, error)

	// ReadJSONData returns the payload of a single message; ok is false when it does not exist.
	ReadJSONData(ctx context.Context, streamKey string, version int) (data string, ok bool, err error)

	// Close releases the connection.
	Close() error
}

// ScanRequest describes a bounded range scan over the messages of one stream.
type ScanRequest struct {
	InternalID int64
	Direction  Direction
	Position   int64
	Limit      int
	Prefetch   bool
}

// Row is a message as stored. JSONData is only set when the scan prefetched payloads.
type Row struct {
	MessageID     uuid.NullUUID
	StreamVersion int
	Position      int64
	CreatedUTC    time.Time
	Type          string
	JSONMetadata  sql.NullString
	JSONData      sql.NullString
}

// NewStreamMessage is a message handed to the append path of an adapter.
type NewStreamMessage struct {
	// MessageID may be uuid.Nil
	MessageID    uuid.UUID
	Type         string
	JSONData     string
	JSONMetadata string
}
