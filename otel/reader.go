package otel

import (
	"context"
	"time"

	"github.com/shogotsuneto/go-sql-streamstore"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ streamstore.StreamReader = (*TelemetryReader)(nil)

// TelemetryReader records a span and read metrics around each page read.
type TelemetryReader struct {
	next streamstore.StreamReader
}

// ReadStreamForwards with metrics + span
func (t TelemetryReader) ReadStreamForwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*streamstore.Page, error) {
	return t.read(ctx, streamstore.Forward, streamKey, fromVersion, maxCount, prefetch, t.next.ReadStreamForwards)
}

// ReadStreamBackwards with metrics + span
func (t TelemetryReader) ReadStreamBackwards(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*streamstore.Page, error) {
	return t.read(ctx, streamstore.Backward, streamKey, fromVersion, maxCount, prefetch, t.next.ReadStreamBackwards)
}

type readFunc func(ctx context.Context, streamKey string, fromVersion, maxCount int, prefetch bool) (*streamstore.Page, error)

func (t TelemetryReader) read(ctx context.Context, dir streamstore.Direction, streamKey string, fromVersion, maxCount int, prefetch bool, next readFunc) (*streamstore.Page, error) {
	ctx, span := tracer.Start(ctx, "StreamStore.Read",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrStreamKey.String(streamKey),
			AttrDirection.String(dir.String()),
			AttrFromVersion.Int(fromVersion),
			AttrMaxCount.Int(maxCount),
			AttrPrefetch.Bool(prefetch),
		),
	)
	defer span.End()

	start := time.Now()
	page, err := next(ctx, streamKey, fromVersion, maxCount, prefetch)
	duration := time.Since(start)

	attrs := metric.WithAttributes(AttrDirection.String(dir.String()))
	ReadDuration.Record(ctx, durationMillis(duration), attrs)

	if err != nil {
		ReadErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	PagesRead.Add(ctx, 1, attrs)
	MessagesRead.Add(ctx, int64(len(page.Messages)), attrs)
	if page.Status == streamstore.ReadStatusStreamNotFound {
		StreamsNotFound.Add(ctx, 1, attrs)
	}

	span.SetAttributes(
		AttrReadStatus.String(page.Status.String()),
		AttrStreamVersion.Int(page.LastStreamVersion),
		AttrMessageCount.Int(len(page.Messages)),
		AttrNextVersion.Int(page.NextStreamVersion),
		AttrIsEnd.Bool(page.IsEnd),
	)
	return page, nil
}

// WithReaderTelemetry wraps next so that every read is traced and measured.
func WithReaderTelemetry(next streamstore.StreamReader) streamstore.StreamReader {
	return TelemetryReader{next: next}
}

// durationMillis keeps sub-millisecond precision for the duration histogram.
func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
