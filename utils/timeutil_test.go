package utils

import (
	"testing"
	"time"
)

func TestSlotBookable(t *testing.T) {
	now := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)

	if !SlotBookable(now.Add(time.Minute), now) {
		t.Fatalf("expected future slot to be bookable")
	}
	if SlotBookable(now.Add(-time.Minute), now) {
		t.Fatalf("expected past slot to be unbookable")
	}
	if SlotBookable(now, now) {
		t.Fatalf("expected slot starting exactly now to be unbookable")
	}
}

func TestDateKeyUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 23:30 Pacific on March 10 is already March 11 in UTC.
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, loc)
	if got := DateKeyUTC(at); got != "2026-03-11" {
		t.Fatalf("expected 2026-03-11, got %s", got)
	}

	at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if got := DateKeyUTC(at); got != "2026-03-10" {
		t.Fatalf("expected 2026-03-10, got %s", got)
	}
}

func TestParseSlotTime(t *testing.T) {
	got, err := ParseSlotTime("2026-03-10T16:00:00Z", "America/Los_Angeles")
	if err != nil {
		t.Fatalf("ParseSlotTime error: %v", err)
	}
	want := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got, err = ParseSlotTime("2026-03-10T09:00:00-07:00", "America/Los_Angeles")
	if err != nil {
		t.Fatalf("ParseSlotTime error: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got, err = ParseSlotTime("2026-03-10T09:00:00", "America/Los_Angeles")
	if err != nil {
		t.Fatalf("ParseSlotTime error: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected naive time read as zone local, got %v", got)
	}

	if _, err := ParseSlotTime("next tuesday", "UTC"); err == nil {
		t.Fatalf("expected error for unparsable input")
	}
}

func TestLocationOrUTC(t *testing.T) {
	if loc := LocationOrUTC(""); loc != time.UTC {
		t.Fatalf("expected UTC for empty zone, got %v", loc)
	}
	if loc := LocationOrUTC("Mars/Olympus_Mons"); loc != time.UTC {
		t.Fatalf("expected UTC for unknown zone, got %v", loc)
	}
	if loc := LocationOrUTC("America/New_York"); loc.String() != "America/New_York" {
		t.Fatalf("expected America/New_York, got %v", loc)
	}
}

func TestDetectTimezoneFromEnv(t *testing.T) {
	t.Setenv("TZ", "America/New_York")
	if got := DetectTimezone("America/Los_Angeles"); got != "America/New_York" {
		t.Fatalf("expected TZ env zone, got %s", got)
	}
}

func TestFormatDayHeading(t *testing.T) {
	if got := FormatDayHeading("2026-03-10"); got != "Tuesday, March 10" {
		t.Fatalf("unexpected heading: %s", got)
	}
	// Unparsable keys pass through rather than render garbage.
	if got := FormatDayHeading("soon"); got != "soon" {
		t.Fatalf("expected passthrough, got %s", got)
	}
}

func TestFormatSlotClock(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	start := time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)
	if got := FormatSlotClock(start, loc); got != "9:30 AM" {
		t.Fatalf("expected 9:30 AM, got %s", got)
	}
	if got := FormatSlotClock(start, nil); got != "4:30 PM" {
		t.Fatalf("expected UTC fallback 4:30 PM, got %s", got)
	}
}

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	if len(id) != 8 {
		t.Fatalf("expected 8-char token, got %q", id)
	}
	if id == NewCorrelationID() {
		t.Fatalf("expected distinct tokens per call")
	}
}
