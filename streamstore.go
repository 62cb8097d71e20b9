// Package streamstore provides a read engine for append-only, versioned message streams
// stored in relational databases.
package streamstore

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

// Stream version sentinels as seen by callers.
const (
	// StreamVersionStart addresses the first message of a stream.
	StreamVersionStart = 0
	// StreamVersionEnd addresses one past the last known message of a stream.
	StreamVersionEnd = math.MaxInt32
)

// InstrumentationVersion is reported by the telemetry decorators.
const InstrumentationVersion = "0.1.0"

// MaxCount is the largest page size a caller can request. Larger values are clamped to MaxCount-1.
const MaxCount = math.MaxInt32

// Expected versions accepted by the append path of the adapters.
const (
	// ExpectedVersionAny appends without checking the current stream version.
	ExpectedVersionAny = -2
	// ExpectedVersionNoStream requires the stream to be absent or empty.
	ExpectedVersionNoStream = -1
)

// Direction is the order in which a stream is read.
type Direction int

const (
	// Forward reads from lower to higher versions.
	Forward Direction = iota
	// Backward reads from higher to lower versions.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// ReadStatus reports the outcome of a stream read.
type ReadStatus int

const (
	// ReadStatusSuccess means the stream exists and the page holds its messages.
	ReadStatusSuccess ReadStatus = iota
	// ReadStatusStreamNotFound means no stream with the requested key exists.
	ReadStatusStreamNotFound
)

func (s ReadStatus) String() string {
	switch s {
	case ReadStatusSuccess:
		return "success"
	case ReadStatusStreamNotFound:
		return "stream_not_found"
	default:
		return "unknown"
	}
}

// StreamHeader is the directory entry of a stream.
type StreamHeader struct {
	// Key is the external stream id
	Key string
	// InternalID is the surrogate key assigned when the stream was created
	InternalID int64
	// Version is the version of the last message, -1 when the stream is empty
	Version int
	// Position is the store-wide position of the last message, -1 when the stream is empty
	Position int64
	// MaxAge is the retention window in seconds, nil when messages never expire
	MaxAge *int
}

// Message is a single immutable entry of a stream.
type Message struct {
	// StreamKey is the stream the message belongs to
	StreamKey string
	// MessageID is uuid.Nil when the message was stored without an id
	MessageID uuid.UUID
	// StreamVersion is the 0-based index of the message within its stream
	StreamVersion int
	// Position is the store-wide position, unique across all streams
	Position int64
	// CreatedUTC is when the message was appended
	CreatedUTC time.Time
	// Type discriminates the payload
	Type string
	// JSONMetadata is the opaque metadata stored with the message
	JSONMetadata string

	jsonData func(ctx context.Context) (string, error)
}

// GetJSONData returns the payload of the message. For messages read without prefetch it
// opens a new connection to the store on every call.
func (m Message) GetJSONData(ctx context.Context) (string, error) {
	if m.jsonData == nil {
		return "", nil
	}
	return m.jsonData(ctx)
}

// StreamReader reads pages of messages from streams.
type StreamReader interface {
	// ReadStreamForwards reads up to maxCount messages starting at fromVersion in ascending order.
	ReadStreamForwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*Page, error)
	// ReadStreamBackwards reads up to maxCount messages starting at fromVersion in descending order.
	// fromVersion may be StreamVersionEnd to start at the last message.
	ReadStreamBackwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*Page, error)
}
