// Package otel instruments stream readers with OpenTelemetry traces and metrics.
package otel

import (
	"github.com/shogotsuneto/go-sql-streamstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/shogotsuneto/go-sql-streamstore"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Stream attributes
	AttrStreamKey     = attribute.Key("streamstore.stream.key")
	AttrStreamVersion = attribute.Key("streamstore.stream.version")
	AttrReadStatus    = attribute.Key("streamstore.read.status")

	// Read attributes
	AttrDirection    = attribute.Key("streamstore.read.direction")
	AttrFromVersion  = attribute.Key("streamstore.read.from_version")
	AttrMaxCount     = attribute.Key("streamstore.read.max_count")
	AttrPrefetch     = attribute.Key("streamstore.read.prefetch")
	AttrMessageCount = attribute.Key("streamstore.messages.count")
	AttrNextVersion  = attribute.Key("streamstore.read.next_version")
	AttrIsEnd        = attribute.Key("streamstore.read.is_end")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(streamstore.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(streamstore.InstrumentationVersion))

	PagesRead, _ = meter.Int64Counter(
		"streamstore.pages.read",
		metric.WithDescription("Number of stream pages read"),
		metric.WithUnit("{page}"),
	)

	MessagesRead, _ = meter.Int64Counter(
		"streamstore.messages.read",
		metric.WithDescription("Number of messages returned in pages"),
		metric.WithUnit("{message}"),
	)

	StreamsNotFound, _ = meter.Int64Counter(
		"streamstore.streams.not_found",
		metric.WithDescription("Number of reads of missing streams"),
		metric.WithUnit("{read}"),
	)

	ReadErrors, _ = meter.Int64Counter(
		"streamstore.read.errors",
		metric.WithDescription("Number of failed reads"),
		metric.WithUnit("{error}"),
	)

	ReadDuration, _ = meter.Float64Histogram(
		"streamstore.read.duration",
		metric.WithDescription("Stream page read duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
)
