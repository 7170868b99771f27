// Package clock provides the coordinator's notion of wall time and
// host identity: timestamp formatting/parsing and age computation for
// the lock manager, and a stable hostname for lock ownership checks.
package clock

import (
	"math"
	"os"
	"time"
)

// Now returns the current instant, timezone-aware (UTC).
func Now() time.Time {
	return time.Now().UTC()
}

// HostID returns a stable identifier for the current machine: the
// OS-reported hostname. It never returns an error; if the OS call
// fails, "unknown" is returned so callers always have a usable value
// for lock-ownership comparisons.
func HostID() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

// FormatISO renders an instant as ISO-8601 with a timezone offset.
func FormatISO(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseISO parses an ISO-8601 timestamp, accepting both offset-aware
// and naive forms. A naive timestamp (no offset, no trailing "Z") is
// interpreted as UTC, matching the source wrapper's behavior.
func ParseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	// Naive timestamp, no offset: assume UTC.
	const naiveLayout = "2006-01-02T15:04:05.999999999"
	if t, err := time.Parse(naiveLayout, s); err == nil {
		return t.UTC(), nil
	}
	const naiveLayoutSpace = "2006-01-02 15:04:05.999999999"
	if t, err := time.Parse(naiveLayoutSpace, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errUnparseableTimestamp
}

// AgeSeconds returns the age of an ISO-8601 timestamp in seconds. A
// malformed or empty timestamp yields +Inf, which callers treat as
// stale — this mirrors the heartbeat_age() fallback the lock protocol
// depends on for safety (an unreadable heartbeat must never look
// fresh).
func AgeSeconds(ts string) float64 {
	parsed, err := ParseISO(ts)
	if err != nil {
		return math.Inf(1)
	}
	return Now().Sub(parsed).Seconds()
}

type timestampError string

func (e timestampError) Error() string { return string(e) }

const (
	errEmptyTimestamp       = timestampError("clock: empty timestamp")
	errUnparseableTimestamp = timestampError("clock: unparseable timestamp")
)
