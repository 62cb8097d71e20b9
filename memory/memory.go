// Package memory provides an in-memory stream store backend.
// This implementation is suitable for testing and demonstration purposes.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shogotsuneto/go-sql-streamstore"
)

// Compile-time interface compliance checks
var (
	_ streamstore.Backend = (*Store)(nil)
	_ streamstore.Conn    = (*conn)(nil)
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("memory: store is closed")

type storedMessage struct {
	row  streamstore.Row
	data string
}

type stream struct {
	header   streamstore.StreamHeader
	messages []storedMessage // indexed by stream version
}

// Store keeps streams in process memory. Positions are shared by all streams.
type Store struct {
	mu             sync.RWMutex
	streams        map[string]*stream
	byID           map[int64]*stream
	lastInternalID int64
	lastPosition   int64
	clock          streamstore.Clock
	closed         bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp appended messages.
func WithClock(c streamstore.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		streams:      make(map[string]*stream),
		byID:         make(map[int64]*stream),
		lastPosition: -1,
		clock:        streamstore.ClockFunc(time.Now),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a connection to the store.
func (s *Store) Open(ctx context.Context) (streamstore.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &conn{store: s}, nil
}

// Close drops all streams. The store cannot be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.streams = make(map[string]*stream)
	s.byID = make(map[int64]*stream)
	return nil
}

// ensureStream returns the stream for key, creating an empty one if needed. Caller holds s.mu.
func (s *Store) ensureStream(key string) *stream {
	st, ok := s.streams[key]
	if !ok {
		s.lastInternalID++
		st = &stream{header: streamstore.StreamHeader{
			Key:        key,
			InternalID: s.lastInternalID,
			Version:    -1,
			Position:   -1,
		}}
		s.streams[key] = st
		s.byID[st.header.InternalID] = st
	}
	return st
}

// AppendToStream appends messages to a stream, creating it when absent, and returns the
// header after the append.
func (s *Store) AppendToStream(ctx context.Context, streamKey string, expectedVersion int, messages ...streamstore.NewStreamMessage) (streamstore.StreamHeader, error) {
	if err := ctx.Err(); err != nil {
		return streamstore.StreamHeader{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return streamstore.StreamHeader{}, ErrClosed
	}

	current := -1
	if st, ok := s.streams[streamKey]; ok {
		current = st.header.Version
	}
	if err := streamstore.CheckExpectedVersion(streamKey, expectedVersion, current); err != nil {
		return streamstore.StreamHeader{}, err
	}

	st := s.ensureStream(streamKey)
	now := s.clock.Now().UTC()
	for _, m := range messages {
		s.lastPosition++
		st.header.Version++
		st.header.Position = s.lastPosition
		st.messages = append(st.messages, storedMessage{
			row: streamstore.Row{
				MessageID:     uuid.NullUUID{UUID: m.MessageID, Valid: m.MessageID != uuid.Nil},
				StreamVersion: st.header.Version,
				Position:      s.lastPosition,
				CreatedUTC:    now,
				Type:          m.Type,
				JSONMetadata:  sql.NullString{String: m.JSONMetadata, Valid: m.JSONMetadata != ""},
			},
			data: m.JSONData,
		})
	}
	return st.header, nil
}

// SetStreamMaxAge sets the retention window of a stream in seconds, creating the stream
// when absent. A nil maxAge disables expiration.
func (s *Store) SetStreamMaxAge(ctx context.Context, streamKey string, maxAge *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	st := s.ensureStream(streamKey)
	if maxAge == nil {
		st.header.MaxAge = nil
		return nil
	}
	v := *maxAge
	st.header.MaxAge = &v
	return nil
}

type conn struct {
	store *Store
}

func (c *conn) StreamHeader(ctx context.Context, streamKey string) (streamstore.StreamHeader, bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	st, ok := c.store.streams[streamKey]
	if !ok {
		return streamstore.StreamHeader{}, false, nil
	}
	header := st.header
	if header.MaxAge != nil {
		v := *header.MaxAge
		header.MaxAge = &v
	}
	return header, true, nil
}

// stream finds a stream by internal id. Caller holds c.store.mu.
func (c *conn) stream(internalID int64) *stream {
	return c.store.byID[internalID]
}

func (c *conn) ResolvePosition(ctx context.Context, internalID int64, dir streamstore.Direction, version streamstore.Version) (int64, bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	st := c.stream(internalID)
	if st == nil || len(st.messages) == 0 {
		return 0, false, nil
	}

	if dir == streamstore.Forward {
		for _, m := range st.messages {
			if m.row.StreamVersion >= version.Int() {
				return m.row.Position, true, nil
			}
		}
		return 0, false, nil
	}

	if version.IsEnd() {
		return st.messages[len(st.messages)-1].row.Position, true, nil
	}
	for i := len(st.messages) - 1; i >= 0; i-- {
		if st.messages[i].row.StreamVersion <= version.Int() {
			return st.messages[i].row.Position, true, nil
		}
	}
	return 0, false, nil
}

func inRange(dir streamstore.Direction, position, start int64) bool {
	if dir == streamstore.Forward {
		return position >= start
	}
	return position <= start
}

func (c *conn) Remaining(ctx context.Context, internalID int64, dir streamstore.Direction, position int64) (int, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	st := c.stream(internalID)
	if st == nil {
		return 0, nil
	}
	n := 0
	for _, m := range st.messages {
		if inRange(dir, m.row.Position, position) {
			n++
		}
	}
	return n, nil
}

func (c *conn) Scan(ctx context.Context, req streamstore.ScanRequest) ([]streamstore.Row, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	st := c.stream(req.InternalID)
	if st == nil {
		return nil, nil
	}

	rows := make([]streamstore.Row, 0)
	add := func(m storedMessage) bool {
		if len(rows) >= req.Limit {
			return false
		}
		if inRange(req.Direction, m.row.Position, req.Position) {
			row := m.row
			if req.Prefetch {
				row.JSONData = sql.NullString{String: m.data, Valid: true}
			}
			rows = append(rows, row)
		}
		return true
	}

	if req.Direction == streamstore.Forward {
		for _, m := range st.messages {
			if !add(m) {
				break
			}
		}
	} else {
		for i := len(st.messages) - 1; i >= 0; i-- {
			if !add(st.messages[i]) {
				break
			}
		}
	}
	return rows, nil
}

func (c *conn) ReadJSONData(ctx context.Context, streamKey string, version int) (string, bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if c.store.closed {
		return "", false, ErrClosed
	}
	st, ok := c.store.streams[streamKey]
	if !ok || version < 0 || version >= len(st.messages) {
		return "", false, nil
	}
	return st.messages[version].data, true, nil
}

// Close is a no-op; memory connections hold no resources.
func (c *conn) Close() error {
	return nil
}
