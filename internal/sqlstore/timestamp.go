package sqlstore

import (
	"fmt"
	"time"
)

// Timestamp scans created_utc whether the driver returns a time, unix nanoseconds or text.
type Timestamp struct {
	Time time.Time
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case int64:
		t.Time = time.Unix(0, v).UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (t *Timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// UnixNano stores times as integer nanoseconds, for engines without a native timestamp type.
func UnixNano(t time.Time) any {
	return t.UTC().UnixNano()
}
