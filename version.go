package streamstore

import "fmt"

type versionKind uint8

const (
	versionExact versionKind = iota
	versionStart
	versionEnd
)

// Version is a requested stream version: the start of a stream, the end of a stream or an
// exact version.
type Version struct {
	kind versionKind
	n    int
}

// VersionStart addresses the first message of a stream.
func VersionStart() Version { return Version{kind: versionStart} }

// VersionEnd addresses one past the last known message of a stream.
func VersionEnd() Version { return Version{kind: versionEnd, n: StreamVersionEnd} }

// ExactVersion addresses the message with version n.
func ExactVersion(n int) Version { return Version{kind: versionExact, n: n} }

// ParseVersion maps a caller supplied version, including the sentinel integers, to a Version.
func ParseVersion(v int) (Version, error) {
	switch {
	case v == StreamVersionStart:
		return VersionStart(), nil
	case v == StreamVersionEnd:
		return VersionEnd(), nil
	case v < 0:
		return Version{}, fmt.Errorf("%w: stream version %d must not be negative", ErrInvalidArgument, v)
	default:
		return ExactVersion(v), nil
	}
}

// IsStart reports whether v addresses the first message.
func (v Version) IsStart() bool { return v.kind == versionStart }

// IsEnd reports whether v is the end sentinel.
func (v Version) IsEnd() bool { return v.kind == versionEnd }

// Int returns the version as carried on the external interface.
func (v Version) Int() int {
	switch v.kind {
	case versionStart:
		return StreamVersionStart
	case versionEnd:
		return StreamVersionEnd
	default:
		return v.n
	}
}

func (v Version) String() string {
	switch v.kind {
	case versionStart:
		return "start"
	case versionEnd:
		return "end"
	default:
		return fmt.Sprintf("%d", v.n)
	}
}
