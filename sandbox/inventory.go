// Package sandbox is a self-contained fake of the portal booking API. The
// demo binary embeds it when no live portal is configured, and the client
// test suites run against it over httptest. It enforces the same wire
// contract as the real thing, including the 409 on a lost slot race.
package sandbox

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drshumard/bookingflow/models"
)

type record struct {
	slot  models.Slot
	taken bool
}

// Inventory is the in-memory slot book. One mutex covers reads and writes;
// the booking race the flow has to survive is reproduced by Steal or by two
// competing Book calls.
type Inventory struct {
	mu     sync.Mutex
	slots  map[string]*record
	emails map[string]bool
	now    func() time.Time
}

// NewInventory builds an empty book. Pass nil to use the wall clock.
func NewInventory(now func() time.Time) *Inventory {
	if now == nil {
		now = time.Now
	}
	return &Inventory{
		slots:  make(map[string]*record),
		emails: make(map[string]bool),
		now:    now,
	}
}

// Seed fills the book with a deterministic weekday schedule: two consultants
// with morning and afternoon openings, sharing the 10:00 start so duplicate
// clock times show up in every seeded window.
func (inv *Inventory) Seed(days int) {
	day := inv.now().UTC().Truncate(24 * time.Hour)
	added := 0
	for added < days {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for _, mins := range []int{9 * 60, 10 * 60, 11*60 + 30, 14 * 60, 15*60 + 30} {
				inv.Add(models.Slot{
					StartTime:    day.Add(time.Duration(mins) * time.Minute),
					ConsultantID: "c-101",
				})
			}
			for _, mins := range []int{10 * 60, 13 * 60, 16 * 60} {
				inv.Add(models.Slot{
					StartTime:    day.Add(time.Duration(mins) * time.Minute),
					ConsultantID: "c-102",
				})
			}
		}
		day = day.AddDate(0, 0, 1)
		added++
	}
}

// Add offers one slot. Re-adding an already booked slot reopens it.
func (inv *Inventory) Add(slot models.Slot) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.slots[slot.Key()] = &record{slot: slot}
}

// Available lists the open future slots inside [fromDate, fromDate+days).
// An unparsable fromDate falls back to today.
func (inv *Inventory) Available(fromDate string, days int) []models.Slot {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	now := inv.now()
	start, err := time.ParseInLocation("2006-01-02", fromDate, time.UTC)
	if err != nil {
		start = now.UTC().Truncate(24 * time.Hour)
	}
	cutoff := start.AddDate(0, 0, days)

	var out []models.Slot
	for _, rec := range inv.slots {
		if rec.taken {
			continue
		}
		at := rec.slot.StartTime
		if !at.After(now) || at.Before(start) || !at.Before(cutoff) {
			continue
		}
		out = append(out, rec.slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ConsultantID < out[j].ConsultantID
	})
	return out
}

// Book reserves a slot. Unknown, already taken and already started slots all
// answer the same way a live portal does: a slot-unavailable conflict.
func (inv *Inventory) Book(req models.BookingRequest) (*models.BookingResult, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	key := models.Slot{StartTime: req.SlotStartTime, ConsultantID: req.ConsultantID}.Key()
	rec, ok := inv.slots[key]
	if !ok || rec.taken {
		return nil, &models.SlotUnavailableError{Detail: "This time slot is no longer available."}
	}
	if !rec.slot.StartTime.After(inv.now()) {
		return nil, &models.SlotUnavailableError{Detail: "This time slot has already started."}
	}
	rec.taken = true

	email := strings.ToLower(strings.TrimSpace(req.Email))
	isNew := !inv.emails[email]
	inv.emails[email] = true

	return &models.BookingResult{
		SessionID:      uuid.NewString(),
		ClientRecordID: uuid.NewString(),
		IsNewClient:    isNew,
	}, nil
}

// Steal marks a slot taken without booking it, so the next Book on it loses
// the race. Returns false when the slot is unknown.
func (inv *Inventory) Steal(start time.Time, consultantID string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	rec, ok := inv.slots[models.Slot{StartTime: start, ConsultantID: consultantID}.Key()]
	if !ok {
		return false
	}
	rec.taken = true
	return true
}
