package clock

import (
	"math"
	"testing"
	"time"
)

func TestFormatParseRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	s := FormatISO(now)
	got, err := ParseISO(s)
	if err != nil {
		t.Fatalf("ParseISO(%q): %v", s, err)
	}
	if !got.Equal(now) {
		t.Errorf("round trip mismatch: got %v want %v", got, now)
	}
}

func TestParseISONaiveAssumesUTC(t *testing.T) {
	got, err := ParseISO("2026-03-05T12:30:00")
	if err != nil {
		t.Fatalf("ParseISO: %v", err)
	}
	if got.Location() != time.UTC {
		t.Errorf("naive timestamp should be interpreted as UTC, got location %v", got.Location())
	}
}

func TestAgeSecondsMalformedIsInfinite(t *testing.T) {
	if age := AgeSeconds(""); !math.IsInf(age, 1) {
		t.Errorf("AgeSeconds(empty) = %v, want +Inf", age)
	}
	if age := AgeSeconds("not-a-timestamp"); !math.IsInf(age, 1) {
		t.Errorf("AgeSeconds(garbage) = %v, want +Inf", age)
	}
}

func TestAgeSecondsFresh(t *testing.T) {
	recent := FormatISO(Now().Add(-5 * time.Second))
	age := AgeSeconds(recent)
	if age < 4 || age > 10 {
		t.Errorf("AgeSeconds(5s ago) = %v, want ~5", age)
	}
}

func TestHostIDNeverEmpty(t *testing.T) {
	if HostID() == "" {
		t.Error("HostID() returned empty string")
	}
}
