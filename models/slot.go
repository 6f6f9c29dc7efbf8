package models

import "time"

// Slot is a single bookable consultation opening as the portal reports it.
// Identity is the (StartTime, ConsultantID) pair; two consultants may offer
// the same clock time.
type Slot struct {
	StartTime    time.Time `json:"start_time"`    // ISO-8601 on the wire
	ConsultantID string    `json:"consultant_id"` // opaque scheduling-vendor id
}

// Key returns the identity string used by inventories and logs.
func (s Slot) Key() string {
	return s.StartTime.UTC().Format(time.RFC3339) + "/" + s.ConsultantID
}

// AvailabilityResponse is the wire shape of GET /api/booking/availability.
type AvailabilityResponse struct {
	Slots                 []Slot   `json:"slots"`
	DatesWithAvailability []string `json:"dates_with_availability"` // "2006-01-02", ascending
}

// AvailabilityWindow is the grouped, display-ready view of one availability
// fetch. It is immutable after construction: refreshes build a new window
// rather than mutating a shared one.
type AvailabilityWindow struct {
	Days  map[string][]Slot // date key -> slots, ascending by StartTime
	Dates []string          // date keys with at least one slot, ascending
}

// SlotsOn returns the bucket for a date key, or nil when the day is empty.
func (w *AvailabilityWindow) SlotsOn(date string) []Slot {
	if w == nil {
		return nil
	}
	return w.Days[date]
}

// IsEmpty reports whether the window holds no bookable slots at all.
func (w *AvailabilityWindow) IsEmpty() bool {
	return w == nil || len(w.Dates) == 0
}
