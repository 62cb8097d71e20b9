package streamstore

import (
	"time"

	"github.com/trickstertwo/xclock"
)

// Clock supplies the current time used to decide whether a message has expired.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

func defaultClock() Clock { return xclock.Default() }
