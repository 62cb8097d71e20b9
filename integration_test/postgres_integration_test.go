//go:build integration
// +build integration

package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shogotsuneto/go-sql-streamstore"
	"github.com/shogotsuneto/go-sql-streamstore/postgres"
)

func getTestConnectionString() string {
	// Default connection string for testing
	connStr := "host=localhost port=5432 user=test password=test dbname=streamstore_test sslmode=disable"

	// Allow override via environment variable
	if envConnStr := os.Getenv("TEST_DATABASE_URL"); envConnStr != "" {
		connStr = envConnStr
	}

	return connStr
}

func setupTestStore(t *testing.T, tablePrefix string) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	store, err := postgres.Open(ctx, postgres.Config{
		ConnectionString: getTestConnectionString(),
		TablePrefix:      tablePrefix,
	})
	if err != nil {
		t.Fatalf("Failed to open PostgreSQL store: %v", err)
	}
	if err := postgres.InitSchema(ctx, store.DB(), tablePrefix); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	return store
}

// uniqueStream returns a stream key that does not collide with earlier test runs.
func uniqueStream(name string) string {
	return name + "-" + uuid.NewString()
}

func appendMessages(t *testing.T, store *postgres.Store, streamKey string, n int) []streamstore.NewStreamMessage {
	t.Helper()
	msgs := make([]streamstore.NewStreamMessage, n)
	for i := range msgs {
		msgs[i] = streamstore.NewStreamMessage{
			MessageID:    uuid.New(),
			Type:         "OrderPlaced",
			JSONData:     fmt.Sprintf(`{"n": %d}`, i),
			JSONMetadata: `{"source": "integration"}`,
		}
	}
	if _, err := store.AppendToStream(context.Background(), streamKey, streamstore.ExpectedVersionAny, msgs...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return msgs
}

func versions(page *streamstore.Page) []int {
	out := make([]int, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, m.StreamVersion)
	}
	return out
}

func TestPostgresReader_Integration_ReadForwards(t *testing.T) {
	store := setupTestStore(t, "test")
	reader := streamstore.NewReader(store)
	defer reader.Close()
	ctx := context.Background()

	streamKey := uniqueStream("forwards")
	msgs := appendMessages(t, store, streamKey, 5)

	page, err := reader.ReadStreamForwards(ctx, streamKey, streamstore.StreamVersionStart, 10, true)
	if err != nil {
		t.Fatalf("ReadStreamForwards failed: %v", err)
	}
	if got := versions(page); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("Expected versions [0 1 2 3 4], got %v", got)
	}
	if !page.IsEnd || page.NextStreamVersion != 5 {
		t.Errorf("Expected IsEnd and next 5, got %v/%d", page.IsEnd, page.NextStreamVersion)
	}
	for i, m := range page.Messages {
		if m.MessageID != msgs[i].MessageID {
			t.Errorf("Message %d: expected id %s, got %s", i, msgs[i].MessageID, m.MessageID)
		}
		data, err := m.GetJSONData(ctx)
		if err != nil {
			t.Fatalf("GetJSONData failed: %v", err)
		}
		if data != msgs[i].JSONData {
			t.Errorf("Message %d: expected payload %q, got %q", i, msgs[i].JSONData, data)
		}
		if i > 0 && m.Position <= page.Messages[i-1].Position {
			t.Errorf("Expected ascending positions, got %d after %d", m.Position, page.Messages[i-1].Position)
		}
	}
}

func TestPostgresReader_Integration_BackwardPaging(t *testing.T) {
	store := setupTestStore(t, "test")
	reader := streamstore.NewReader(store)
	defer reader.Close()
	ctx := context.Background()

	streamKey := uniqueStream("backwards")
	appendMessages(t, store, uniqueStream("other"), 3)
	appendMessages(t, store, streamKey, 5)

	first, err := reader.ReadStreamBackwards(ctx, streamKey, streamstore.StreamVersionEnd, 2, false)
	if err != nil {
		t.Fatalf("ReadStreamBackwards failed: %v", err)
	}
	if got := versions(first); !reflect.DeepEqual(got, []int{4, 3}) {
		t.Errorf("Expected versions [4 3], got %v", got)
	}
	if first.IsEnd || first.NextStreamVersion != 2 {
		t.Errorf("Expected more pages and next 2, got %v/%d", first.IsEnd, first.NextStreamVersion)
	}

	second, err := first.ReadNext(ctx)
	if err != nil {
		t.Fatalf("ReadNext failed: %v", err)
	}
	if got := versions(second); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Errorf("Expected versions [2 1], got %v", got)
	}

	last, err := reader.ReadStreamBackwards(ctx, streamKey, second.NextStreamVersion, 10, false)
	if err != nil {
		t.Fatalf("ReadStreamBackwards failed: %v", err)
	}
	if got := versions(last); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("Expected versions [0], got %v", got)
	}
	if !last.IsEnd || last.NextStreamVersion != streamstore.StreamVersionEnd {
		t.Errorf("Expected IsEnd and next End, got %v/%d", last.IsEnd, last.NextStreamVersion)
	}

	// Lazy payloads open their own connection after the read has returned
	if _, err := first.Messages[0].GetJSONData(ctx); err != nil {
		t.Errorf("GetJSONData failed: %v", err)
	}
}

func TestPostgresReader_Integration_StreamNotFound(t *testing.T) {
	store := setupTestStore(t, "test")
	reader := streamstore.NewReader(store)
	defer reader.Close()

	page, err := reader.ReadStreamForwards(context.Background(), uniqueStream("missing"), 0, 10, true)
	if err != nil {
		t.Fatalf("ReadStreamForwards failed: %v", err)
	}
	if page.Status != streamstore.ReadStatusStreamNotFound {
		t.Errorf("Expected StreamNotFound, got %s", page.Status)
	}
	if !page.IsEnd || page.NextStreamVersion != streamstore.StreamVersionEnd {
		t.Errorf("Expected IsEnd and next End, got %v/%d", page.IsEnd, page.NextStreamVersion)
	}
}

func TestPostgresReader_Integration_ExpiredMessages(t *testing.T) {
	store := setupTestStore(t, "test")
	ctx := context.Background()
	streamKey := uniqueStream("expiring")
	appendMessages(t, store, streamKey, 3)

	maxAge := 30
	if err := store.SetStreamMaxAge(ctx, streamKey, &maxAge); err != nil {
		t.Fatalf("SetStreamMaxAge failed: %v", err)
	}

	later := streamstore.ClockFunc(func() time.Time { return time.Now().Add(time.Hour) })
	reader := streamstore.NewReader(store, streamstore.WithClock(later))
	defer reader.Close()

	page, err := reader.ReadStreamForwards(ctx, streamKey, 0, 2, true)
	if err != nil {
		t.Fatalf("ReadStreamForwards failed: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Errorf("Expected expired messages to be filtered, got %d", len(page.Messages))
	}
	if page.IsEnd || page.NextStreamVersion != 2 {
		t.Errorf("Expected cursor to advance to 2, got %v/%d", page.IsEnd, page.NextStreamVersion)
	}
}

func TestPostgresStore_Integration_ConcurrentAppends(t *testing.T) {
	store := setupTestStore(t, "test")
	defer store.Close()
	ctx := context.Background()
	streamKey := uniqueStream("concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, err := store.AppendToStream(ctx, streamKey, streamstore.ExpectedVersionAny, streamstore.NewStreamMessage{
				MessageID: uuid.New(),
				Type:      "ConcurrentEvent",
				JSONData:  fmt.Sprintf(`{"worker": %d}`, index),
			})
			if err != nil {
				t.Errorf("Concurrent append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	reader := streamstore.NewReader(store)
	page, err := reader.ReadStreamForwards(ctx, streamKey, 0, 10, false)
	if err != nil {
		t.Fatalf("ReadStreamForwards failed: %v", err)
	}
	if got := versions(page); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Expected sequential versions [0 1 2], got %v", got)
	}
}

func TestPostgresStore_Integration_WrongExpectedVersion(t *testing.T) {
	store := setupTestStore(t, "test")
	defer store.Close()
	ctx := context.Background()
	streamKey := uniqueStream("conflict")
	appendMessages(t, store, streamKey, 1)

	_, err := store.AppendToStream(ctx, streamKey, streamstore.ExpectedVersionNoStream,
		streamstore.NewStreamMessage{Type: "X", JSONData: `{}`})

	var wrongVersion *streamstore.ErrWrongExpectedVersion
	if !errors.As(err, &wrongVersion) {
		t.Fatalf("Expected ErrWrongExpectedVersion, got %T: %v", err, err)
	}
	if wrongVersion.ActualVersion != 0 {
		t.Errorf("Expected ActualVersion 0, got %d", wrongVersion.ActualVersion)
	}
}

func TestPostgresStore_Integration_CustomTablePrefix(t *testing.T) {
	prefix := "custom_" + time.Now().Format("20060102150405")
	store := setupTestStore(t, prefix)
	defer store.Close()

	appendMessages(t, store, "custom-stream", 2)

	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s_messages"`, prefix)
	if err := store.DB().QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 messages in %s_messages, got %d", prefix, count)
	}

	var exists bool
	err := store.DB().QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_name = $1
	)`, prefix+"_streams").Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Failed to check if table exists: %v", err)
	}
	if !exists {
		t.Errorf("Expected table %s_streams to exist", prefix)
	}
}
