package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shogotsuneto/go-sql-streamstore"
	"github.com/shogotsuneto/go-sql-streamstore/memory"
)

type failingReader struct {
	err error
}

func (f failingReader) ReadStreamForwards(context.Context, string, int, int, bool) (*streamstore.Page, error) {
	return nil, f.err
}

func (f failingReader) ReadStreamBackwards(context.Context, string, int, int, bool) (*streamstore.Page, error) {
	return nil, f.err
}

func TestWithReaderTelemetry_PassesPagesThrough(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if _, err := store.AppendToStream(ctx, "s", streamstore.ExpectedVersionAny,
		streamstore.NewStreamMessage{Type: "A", JSONData: `{}`},
		streamstore.NewStreamMessage{Type: "B", JSONData: `{}`},
	); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	reader := WithReaderTelemetry(streamstore.NewReader(store))

	page, err := reader.ReadStreamForwards(ctx, "s", 0, 10, true)
	if err != nil {
		t.Fatalf("ReadStreamForwards failed: %v", err)
	}
	if len(page.Messages) != 2 || page.NextStreamVersion != 2 {
		t.Errorf("Expected 2 messages and next 2, got %d/%d", len(page.Messages), page.NextStreamVersion)
	}

	page, err = reader.ReadStreamBackwards(ctx, "missing", streamstore.StreamVersionEnd, 10, true)
	if err != nil {
		t.Fatalf("ReadStreamBackwards failed: %v", err)
	}
	if page.Status != streamstore.ReadStatusStreamNotFound {
		t.Errorf("Expected StreamNotFound, got %s", page.Status)
	}
}

func TestWithReaderTelemetry_ReturnsErrors(t *testing.T) {
	boom := errors.New("boom")
	reader := WithReaderTelemetry(failingReader{err: boom})

	if _, err := reader.ReadStreamForwards(context.Background(), "s", 0, 1, false); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if _, err := reader.ReadStreamBackwards(context.Background(), "s", 0, 1, false); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestDurationMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{d: 500 * time.Microsecond, want: 0.5},
		{d: 1500 * time.Microsecond, want: 1.5},
		{d: 2 * time.Second, want: 2000},
		{d: 999 * time.Nanosecond, want: 0},
	}
	for _, tt := range tests {
		if got := durationMillis(tt.d); got != tt.want {
			t.Errorf("durationMillis(%v): expected %v, got %v", tt.d, tt.want, got)
		}
	}
}
