package streamstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Compile-time interface compliance check
var _ StreamReader = (*Reader)(nil)

// Reader reads pages of stream messages from a Backend.
type Reader struct {
	backend  Backend
	logger   zerolog.Logger
	clock    Clock
	disposed atomic.Bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for read diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithClock sets the clock used to decide message expiration.
func WithClock(c Clock) Option {
	return func(r *Reader) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewReader creates a reader over the given backend. The reader owns the backend and
// closes it on Close.
func NewReader(backend Backend, opts ...Option) *Reader {
	r := &Reader{
		backend: backend,
		logger:  zerolog.Nop(),
		clock:   defaultClock(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Close disposes the reader and closes its backend. Subsequent reads and lazy payload
// accessors fail with ErrDisposed.
func (r *Reader) Close() error {
	if r.disposed.Swap(true) {
		return nil
	}
	return r.backend.Close()
}

// ReadStreamForwards reads up to maxCount messages starting at fromVersion in ascending order.
func (r *Reader) ReadStreamForwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*Page, error) {
	return r.read(ctx, readRequest{
		streamKey:   streamKey,
		direction:   Forward,
		fromVersion: fromVersion,
		maxCount:    maxCount,
		prefetch:    prefetch,
	})
}

// ReadStreamBackwards reads up to maxCount messages starting at fromVersion in descending order.
func (r *Reader) ReadStreamBackwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*Page, error) {
	return r.read(ctx, readRequest{
		streamKey:   streamKey,
		direction:   Backward,
		fromVersion: fromVersion,
		maxCount:    maxCount,
		prefetch:    prefetch,
	})
}

type readRequest struct {
	streamKey   string
	direction   Direction
	fromVersion int
	maxCount    int
	prefetch    bool
}

// limit returns the LIMIT handed to the backend, never more than MaxCount-1.
func (req readRequest) limit() int {
	if req.maxCount >= MaxCount {
		return MaxCount - 1
	}
	return req.maxCount
}

func (r *Reader) read(ctx context.Context, req readRequest) (*Page, error) {
	if r.disposed.Load() {
		return nil, ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from, err := ParseVersion(req.fromVersion)
	if err != nil {
		return nil, err
	}
	if req.maxCount < 0 {
		return nil, fmt.Errorf("%w: count %d must not be negative", ErrInvalidArgument, req.maxCount)
	}

	log := r.logger.With().
		Str("stream", req.streamKey).
		Stringer("direction", req.direction).
		Stringer("from", from).
		Int("count", req.maxCount).
		Logger()

	conn, err := r.backend.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("open connection failed")
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()

	header, ok, err := conn.StreamHeader(ctx, req.streamKey)
	if err != nil {
		log.Error().Err(err).Msg("stream lookup failed")
		return nil, fmt.Errorf("failed to resolve stream '%s': %w", req.streamKey, err)
	}
	if !ok {
		log.Debug().Msg("stream not found")
		return r.notFoundPage(req), nil
	}

	position, ok, err := conn.ResolvePosition(ctx, header.InternalID, req.direction, from)
	if err != nil {
		log.Error().Err(err).Msg("position lookup failed")
		return nil, fmt.Errorf("failed to resolve position of stream '%s': %w", req.streamKey, err)
	}
	if !ok {
		log.Debug().Int("last_version", header.Version).Msg("no messages in range")
		return r.exhaustedPage(req, header), nil
	}

	remaining, err := conn.Remaining(ctx, header.InternalID, req.direction, position)
	if err != nil {
		log.Error().Err(err).Msg("count remaining failed")
		return nil, fmt.Errorf("failed to count messages of stream '%s': %w", req.streamKey, err)
	}

	rows, err := conn.Scan(ctx, ScanRequest{
		InternalID: header.InternalID,
		Direction:  req.direction,
		Position:   position,
		Limit:      req.limit(),
		Prefetch:   req.prefetch,
	})
	if err != nil {
		log.Error().Err(err).Msg("scan failed")
		return nil, fmt.Errorf("failed to read messages of stream '%s': %w", req.streamKey, err)
	}

	unfiltered := make([]Message, 0, len(rows))
	for _, row := range rows {
		unfiltered = append(unfiltered, r.hydrate(req.streamKey, row, req.prefetch))
	}
	filtered := filterExpired(unfiltered, header.MaxAge, r.clock.Now())

	page := r.assemble(req, from, header, unfiltered, filtered, remaining)

	log.Debug().
		Int("returned", len(filtered)).
		Int("expired", len(unfiltered)-len(filtered)).
		Bool("is_end", page.IsEnd).
		Int("next", page.NextStreamVersion).
		Msg("stream page read")

	return page, nil
}
