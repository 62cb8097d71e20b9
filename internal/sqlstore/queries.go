// Package sqlstore implements the stream store backend on database/sql. Adapters supply a
// Dialect; the query shapes are shared.
package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	// Placeholder returns the bind parameter for the n-th (1-based) argument.
	Placeholder func(n int) string
	// LockClause is appended to the header query of the append path, e.g. " FOR UPDATE".
	LockClause string
	// EncodeTime converts a creation time to the value stored in created_utc.
	EncodeTime func(t time.Time) any
}

// Queries holds the statements used by Conn and Store.
type Queries struct {
	StreamHeader      string
	PositionForward   string
	PositionBackward  string
	PositionLast      string
	RemainingForward  string
	RemainingBackward string
	ScanForward       string
	ScanBackward      string
	ScanForwardData   string
	ScanBackwardData  string
	JSONData          string

	EnsureStream  string
	LockStream    string
	InsertMessage string
	LastPosition  string
	UpdateStream  string
	UpdateMaxAge  string

	encodeTime func(t time.Time) any
}

// QuoteIdentifier quotes an identifier so it is safe to use in a statement.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// StreamsTable returns the name of the streams table for a prefix.
func StreamsTable(prefix string) string { return prefix + "_streams" }

// MessagesTable returns the name of the messages table for a prefix.
func MessagesTable(prefix string) string { return prefix + "_messages" }

// NewQueries renders the statements for the tables named by prefix.
func NewQueries(d Dialect, prefix string) Queries {
	streams := QuoteIdentifier(StreamsTable(prefix))
	messages := QuoteIdentifier(MessagesTable(prefix))
	p := d.Placeholder

	scan := func(cmp, order, data string) string {
		return fmt.Sprintf(`SELECT message_id, stream_version, position, created_utc, type, json_metadata, %s
		FROM %s
		WHERE stream_id_internal = %s AND position %s %s
		ORDER BY position %s
		LIMIT %s`, data, messages, p(1), cmp, p(2), order, p(3))
	}

	encode := d.EncodeTime
	if encode == nil {
		encode = func(t time.Time) any { return t }
	}

	return Queries{
		StreamHeader: fmt.Sprintf(
			`SELECT id_internal, version, position, max_age FROM %s WHERE id = %s`, streams, p(1)),
		PositionForward: fmt.Sprintf(
			`SELECT MIN(position) FROM %s WHERE stream_id_internal = %s AND stream_version >= %s`, messages, p(1), p(2)),
		PositionBackward: fmt.Sprintf(
			`SELECT MAX(position) FROM %s WHERE stream_id_internal = %s AND stream_version <= %s`, messages, p(1), p(2)),
		PositionLast: fmt.Sprintf(
			`SELECT MAX(position) FROM %s WHERE stream_id_internal = %s`, messages, p(1)),
		RemainingForward: fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE stream_id_internal = %s AND position >= %s`, messages, p(1), p(2)),
		RemainingBackward: fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE stream_id_internal = %s AND position <= %s`, messages, p(1), p(2)),
		ScanForward:      scan(">=", "ASC", "NULL"),
		ScanBackward:     scan("<=", "DESC", "NULL"),
		ScanForwardData:  scan(">=", "ASC", "json_data"),
		ScanBackwardData: scan("<=", "DESC", "json_data"),
		JSONData: fmt.Sprintf(`SELECT m.json_data
		FROM %s m JOIN %s s ON s.id_internal = m.stream_id_internal
		WHERE s.id = %s AND m.stream_version = %s`, messages, streams, p(1), p(2)),

		EnsureStream: fmt.Sprintf(
			`INSERT INTO %s (id) VALUES (%s) ON CONFLICT (id) DO NOTHING`, streams, p(1)),
		LockStream: fmt.Sprintf(
			`SELECT id_internal, version FROM %s WHERE id = %s%s`, streams, p(1), d.LockClause),
		InsertMessage: fmt.Sprintf(`INSERT INTO %s
		(stream_id_internal, stream_version, message_id, created_utc, type, json_metadata, json_data)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`, messages, p(1), p(2), p(3), p(4), p(5), p(6), p(7)),
		LastPosition: fmt.Sprintf(
			`SELECT MAX(position) FROM %s WHERE stream_id_internal = %s`, messages, p(1)),
		UpdateStream: fmt.Sprintf(
			`UPDATE %s SET version = %s, position = %s WHERE id_internal = %s`, streams, p(1), p(2), p(3)),
		UpdateMaxAge: fmt.Sprintf(
			`UPDATE %s SET max_age = %s WHERE id = %s`, streams, p(1), p(2)),
		encodeTime: encode,
	}
}
