package streamstore

import (
	"context"
	"errors"
)

// Page is one bounded, ordered slice of a stream.
type Page struct {
	// StreamKey is the stream that was requested
	StreamKey string
	// Status tells whether the stream exists
	Status ReadStatus
	// FromStreamVersion is the version the read started at
	FromStreamVersion int
	// NextStreamVersion is the version to continue reading from in the same direction
	NextStreamVersion int
	// LastStreamVersion is the version of the stream when the page was read
	LastStreamVersion int
	// LastStreamPosition is the position of the stream when the page was read
	LastStreamPosition int64
	// Direction is the order of Messages
	Direction Direction
	// IsEnd is true when no messages follow this page in Direction
	IsEnd bool
	// Messages excludes expired messages
	Messages []Message

	readNext func(ctx context.Context, fromVersion int) (*Page, error)
}

// ReadNext reads the page following p with the same direction, count and prefetch setting.
func (p *Page) ReadNext(ctx context.Context) (*Page, error) {
	if p.readNext == nil {
		return nil, errors.New("page has no continuation")
	}
	return p.readNext(ctx, p.NextStreamVersion)
}

func (r *Reader) continuation(req readRequest) func(ctx context.Context, fromVersion int) (*Page, error) {
	return func(ctx context.Context, fromVersion int) (*Page, error) {
		next := req
		next.fromVersion = fromVersion
		return r.read(ctx, next)
	}
}

func (r *Reader) notFoundPage(req readRequest) *Page {
	return &Page{
		StreamKey:          req.streamKey,
		Status:             ReadStatusStreamNotFound,
		FromStreamVersion:  req.fromVersion,
		NextStreamVersion:  StreamVersionEnd,
		LastStreamVersion:  StreamVersionEnd,
		LastStreamPosition: StreamVersionEnd,
		Direction:          req.direction,
		IsEnd:              true,
		readNext:           r.continuation(req),
	}
}

// exhaustedPage is returned when the stream exists but no message lies in the requested range.
func (r *Reader) exhaustedPage(req readRequest, header StreamHeader) *Page {
	next := header.Version + 1
	if req.direction == Backward {
		next = StreamVersionEnd
	}
	return &Page{
		StreamKey:          req.streamKey,
		Status:             ReadStatusSuccess,
		FromStreamVersion:  req.fromVersion,
		NextStreamVersion:  next,
		LastStreamVersion:  header.Version,
		LastStreamPosition: header.Position,
		Direction:          req.direction,
		IsEnd:              true,
		readNext:           r.continuation(req),
	}
}

// assemble builds a page from one scan. The cursor and IsEnd are computed from the unfiltered
// messages so that expired messages are never scanned twice.
func (r *Reader) assemble(req readRequest, from Version, header StreamHeader, unfiltered, filtered []Message, remaining int) *Page {
	return &Page{
		StreamKey:          req.streamKey,
		Status:             ReadStatusSuccess,
		FromStreamVersion:  req.fromVersion,
		NextStreamVersion:  nextStreamVersion(req.direction, from, header, unfiltered),
		LastStreamVersion:  header.Version,
		LastStreamPosition: header.Position,
		Direction:          req.direction,
		IsEnd:              remaining-len(unfiltered) <= 0,
		Messages:           filtered,
		readNext:           r.continuation(req),
	}
}

func nextStreamVersion(dir Direction, from Version, header StreamHeader, unfiltered []Message) int {
	if dir == Forward {
		if len(unfiltered) == 0 {
			return header.Version + 1
		}
		return unfiltered[len(unfiltered)-1].StreamVersion + 1
	}

	if len(unfiltered) > 0 {
		next := unfiltered[len(unfiltered)-1].StreamVersion - 1
		if next < StreamVersionStart {
			// Version 0 was read, nothing precedes it.
			return StreamVersionEnd
		}
		return next
	}
	// Nothing was consumed, the cursor stays where the caller put it.
	return from.Int()
}
