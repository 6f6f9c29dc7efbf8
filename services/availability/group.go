package availability

import (
	"sort"
	"time"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

// GroupSlotsByDate buckets raw portal slots into the display window starting
// at startDate ("2006-01-02") and spanning maxDays days. Slots on or after
// the cutoff are dropped, duplicate start times keep the first occurrence,
// and every bucket comes out ascending. The input is never mutated.
func GroupSlotsByDate(slots []models.Slot, startDate string, maxDays int) *models.AvailabilityWindow {
	var cutoff time.Time
	if start, err := time.ParseInLocation("2006-01-02", startDate, time.UTC); err == nil && maxDays > 0 {
		cutoff = start.AddDate(0, 0, maxDays)
	}

	days := make(map[string][]models.Slot)
	seen := make(map[int64]bool)

	for _, slot := range slots {
		if slot.StartTime.IsZero() {
			continue
		}
		if !cutoff.IsZero() && !slot.StartTime.Before(cutoff) {
			continue
		}
		// Two consultants offering the same clock time render as one choice;
		// whichever the portal listed first keeps the booking.
		at := slot.StartTime.UnixNano()
		if seen[at] {
			continue
		}
		seen[at] = true

		key := utils.DateKeyUTC(slot.StartTime)
		days[key] = append(days[key], slot)
	}

	dates := make([]string, 0, len(days))
	for key := range days {
		sort.Slice(days[key], func(i, j int) bool {
			return days[key][i].StartTime.Before(days[key][j].StartTime)
		})
		dates = append(dates, key)
	}
	sort.Strings(dates)

	return &models.AvailabilityWindow{Days: days, Dates: dates}
}
