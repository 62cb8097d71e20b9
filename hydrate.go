package streamstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// hydrate converts a stored row into a Message. Without prefetch the payload is read on
// demand through a connection of its own.
func (r *Reader) hydrate(streamKey string, row Row, prefetch bool) Message {
	messageID := uuid.Nil
	if row.MessageID.Valid {
		messageID = row.MessageID.UUID
	}

	msg := Message{
		StreamKey:     streamKey,
		MessageID:     messageID,
		StreamVersion: row.StreamVersion,
		Position:      row.Position,
		CreatedUTC:    row.CreatedUTC,
		Type:          row.Type,
		JSONMetadata:  row.JSONMetadata.String,
	}

	if prefetch {
		data := row.JSONData.String
		msg.jsonData = func(context.Context) (string, error) { return data, nil }
	} else {
		msg.jsonData = r.lazyJSONData(streamKey, row.StreamVersion)
	}
	return msg
}

// lazyJSONData returns an accessor bound only to the message identity. It does not share the
// connection of the read that produced it.
func (r *Reader) lazyJSONData(streamKey string, version int) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if r.disposed.Load() {
			return "", ErrDisposed
		}
		conn, err := r.backend.Open(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to open connection: %w", err)
		}
		defer conn.Close()

		data, _, err := conn.ReadJSONData(ctx, streamKey, version)
		if err != nil {
			return "", fmt.Errorf("failed to read data of '%s'@%d: %w", streamKey, version, err)
		}
		return data, nil
	}
}

// filterExpired drops messages older than maxAge seconds. The input slice is not modified.
func filterExpired(messages []Message, maxAge *int, now time.Time) []Message {
	if maxAge == nil {
		return messages
	}
	window := time.Duration(*maxAge) * time.Second
	filtered := make([]Message, 0, len(messages))
	for _, m := range messages {
		if now.Sub(m.CreatedUTC) <= window {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
