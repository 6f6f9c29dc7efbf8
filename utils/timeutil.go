package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DetectTimezone resolves the IANA timezone identifier this machine runs in.
// It checks TZ, then the /etc/localtime symlink, and falls back to the given
// default when neither yields a loadable zone. The result is what gets sent
// with a booking so the practice sees the patient's local time.
func DetectTimezone(fallback string) string {
	if tz := os.Getenv("TZ"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if link, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(link, "zoneinfo/"); i >= 0 {
			name := filepath.ToSlash(link[i+len("zoneinfo/"):])
			if _, err := time.LoadLocation(name); err == nil {
				return name
			}
		}
	}
	return fallback
}

// LocationOrUTC loads an IANA identifier, falling back to UTC when it is
// empty or unknown.
func LocationOrUTC(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotBookable reports whether a slot starting at start can still be booked
// at instant now. A slot starting exactly now is already in the past.
func SlotBookable(start, now time.Time) bool {
	return start.After(now)
}

// DateKeyUTC returns the "2006-01-02" bucket key for a slot start time.
// Grouping always uses the UTC date component so every client renders the
// same buckets regardless of local zone.
func DateKeyUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ParseSlotTime parses a slot timestamp from the portal API. Handles:
//   - RFC3339 with offset: "2006-01-02T15:04:05-05:00"
//   - RFC3339 UTC: "2006-01-02T15:04:05Z"
//   - Naive datetime (no timezone): "2006-01-02T15:04:05", treated as zone local
func ParseSlotTime(raw string, timezone string) (time.Time, error) {
	loc := LocationOrUTC(timezone)

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05-07:00", raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse slot time %q", raw)
}

// FormatDayHeading renders a date key ("2006-01-02") as the picker heading,
// e.g. "Monday, January 2".
func FormatDayHeading(dateKey string) string {
	t, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return dateKey
	}
	return t.Format("Monday, January 2")
}

// FormatSlotClock renders a slot start in the patient's zone, e.g. "9:30 AM".
func FormatSlotClock(start time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return start.In(loc).Format("3:04 PM")
}
