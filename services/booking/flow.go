// File: booking/flow.go
package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/utils"
)

// Step is one screen of the booking wizard.
type Step string

const (
	StepSelectDate Step = "select-date"
	StepSelectTime Step = "select-time"
	StepFillForm   Step = "fill-form"
	StepConfirming Step = "confirming"
	StepSuccess    Step = "success"
)

// User-facing copy for flow-level failures. Field messages live in
// validate.go; the raw error always goes to the log, never the patient.
const (
	msgSlotJustPassed = "That time is no longer available. Please choose another."
	msgBookingFailed  = "We couldn't complete your booking. Please try again."
)

// Booker submits reservations. *portal.Client satisfies it.
type Booker interface {
	BookSession(ctx context.Context, req models.BookingRequest) (*models.BookingResult, error)
}

// AvailabilityControl is the slice of the availability store the flow
// drives: polling stops while the patient types and the window is dropped
// once a slot is won.
type AvailabilityControl interface {
	Pause()
	Resume()
	Refresh()
	Invalidate()
}

// View is an immutable snapshot of the wizard for a presentation shell.
// Shells render it and translate user gestures back into flow events; no
// rendering decision lives in the flow itself.
type View struct {
	Step         Step
	SelectedDate string
	SelectedSlot *models.Slot
	Details      models.ContactDetails
	FieldErrors  map[string]string
	ErrorMessage string
	SlotExpired  bool
	Submitting   bool
	Result       *models.BookingResult
}

// FlowConfig carries the per-patient settings of one wizard run.
type FlowConfig struct {
	Timezone  string        // IANA identifier sent with the booking
	Countdown time.Duration // success auto-advance delay; 0 disables
}

// Flow is the booking wizard state machine. Every event takes the same lock,
// async booking outcomes are matched to the submission that started them and
// dropped when stale, and the success callback fires at most once per flow.
type Flow struct {
	booker    Booker
	avail     AvailabilityControl
	logger    *zap.Logger
	timezone  string
	countdown time.Duration
	now       func() time.Time

	onBooked func(models.BookingResult)
	onDone   func()

	mu          sync.Mutex
	step        Step
	date        string
	slot        *models.Slot
	details     models.ContactDetails
	fieldErrors map[string]string
	errMsg      string
	slotExpired bool
	submitting  bool
	result      *models.BookingResult
	submitSeq   uint64
	bookedFired bool
	doneFired   bool
	closed      bool
	holdsPause  bool // this flow currently gates the store's polling
	countdownT  *time.Timer
	observers   []func(View)
}

// NewFlow builds a wizard at the date picker. The availability store is
// expected to be running; the flow only pauses and resumes it.
func NewFlow(booker Booker, avail AvailabilityControl, cfg FlowConfig, logger *zap.Logger) *Flow {
	return &Flow{
		booker:    booker,
		avail:     avail,
		logger:    logger,
		timezone:  cfg.Timezone,
		countdown: cfg.Countdown,
		now:       time.Now,
		step:      StepSelectDate,
	}
}

// OnBooked registers the success callback. It fires at most once, after the
// portal confirms the reservation. Register before the first Submit.
func (f *Flow) OnBooked(fn func(models.BookingResult)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onBooked = fn
}

// OnDone registers the leave-success callback, fired by explicit Done or the
// countdown, whichever comes first.
func (f *Flow) OnDone(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDone = fn
}

// Subscribe registers a view observer invoked after every applied event,
// outside the flow lock.
func (f *Flow) Subscribe(fn func(View)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// View returns the current snapshot.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// SelectDate picks a day and moves to the time picker. Ignored outside the
// date picker; unknown transitions are no-ops, never errors.
func (f *Flow) SelectDate(date string) {
	f.mu.Lock()
	if f.closed || f.step != StepSelectDate {
		f.mu.Unlock()
		return
	}
	f.date = date
	f.slot = nil
	f.errMsg = ""
	f.step = StepSelectTime
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	f.publish(view, obs)
}

// SelectSlot picks a time and moves to the contact form. A slot whose start
// has already passed is rejected in place with an inline message. On
// success, polling pauses so the form does not shift under the patient.
func (f *Flow) SelectSlot(slot models.Slot) {
	f.mu.Lock()
	if f.closed || f.step != StepSelectTime {
		f.mu.Unlock()
		return
	}
	if !utils.SlotBookable(slot.StartTime, f.now()) {
		f.errMsg = msgSlotJustPassed
		view, obs := f.snapshotLocked()
		f.mu.Unlock()
		f.publish(view, obs)
		return
	}
	chosen := slot
	f.slot = &chosen
	f.slotExpired = false
	f.errMsg = ""
	f.step = StepFillForm
	f.holdsPause = true
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	f.avail.Pause()
	f.publish(view, obs)
}

// Back steps one screen toward the date picker. Contact details survive;
// step-local errors do not. Re-entering a picker resumes polling.
func (f *Flow) Back() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	var resume bool
	switch f.step {
	case StepSelectTime:
		f.step = StepSelectDate
		f.date = ""
		f.slot = nil
		f.errMsg = ""
	case StepFillForm:
		f.step = StepSelectTime
		f.slot = nil
		f.fieldErrors = nil
		f.errMsg = ""
		f.holdsPause = false
		resume = true
	default:
		f.mu.Unlock()
		return
	}
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	if resume {
		f.avail.Resume()
	}
	f.publish(view, obs)
}

// PickAnotherTime is the expiry banner affordance: back to the time picker
// with the banner still up, details retained, polling resumed. The banner
// clears when a new slot is chosen.
func (f *Flow) PickAnotherTime() {
	f.mu.Lock()
	if f.closed || f.step != StepFillForm {
		f.mu.Unlock()
		return
	}
	f.step = StepSelectTime
	f.slot = nil
	f.fieldErrors = nil
	f.errMsg = ""
	f.holdsPause = false
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	f.avail.Resume()
	f.publish(view, obs)
}

// Submit saves the contact details and, when the form and slot hold up,
// sends the reservation. While one submission is in flight further Submit
// calls are ignored, so a double tap cannot book twice. The details are
// saved before any check runs; no failure path discards typed input.
func (f *Flow) Submit(ctx context.Context, details models.ContactDetails) {
	f.mu.Lock()
	if f.closed || f.step != StepFillForm || f.submitting {
		f.mu.Unlock()
		return
	}

	f.details = trimDetails(details)

	if fieldErrs := ValidateContactDetails(f.details); len(fieldErrs) > 0 {
		f.fieldErrors = fieldErrs
		view, obs := f.snapshotLocked()
		f.mu.Unlock()

		f.logger.Debug("contact form rejected",
			zap.Error(&models.ValidationError{Fields: fieldErrs}))
		f.publish(view, obs)
		return
	}
	f.fieldErrors = nil

	// The slot may have started while the patient typed. Recover locally;
	// the portal never sees a request we already know would 409.
	if f.slot == nil || !utils.SlotBookable(f.slot.StartTime, f.now()) {
		f.slot = nil
		f.slotExpired = true
		view, obs := f.snapshotLocked()
		f.mu.Unlock()

		f.avail.Refresh()
		f.publish(view, obs)
		return
	}

	f.submitting = true
	f.errMsg = ""
	f.step = StepConfirming
	f.submitSeq++
	seq := f.submitSeq
	req := models.BookingRequest{
		FirstName:     f.details.FirstName,
		LastName:      f.details.LastName,
		Email:         f.details.Email,
		Phone:         f.details.Phone,
		Timezone:      f.timezone,
		Notes:         f.details.Notes,
		SlotStartTime: f.slot.StartTime,
		ConsultantID:  f.slot.ConsultantID,
	}
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	f.publish(view, obs)

	go func() {
		result, err := f.booker.BookSession(ctx, req)
		f.finishSubmit(seq, result, err)
	}()
}

// finishSubmit applies one booking outcome. Outcomes from a superseded
// submission or a closed flow are dropped unseen.
func (f *Flow) finishSubmit(seq uint64, result *models.BookingResult, err error) {
	f.mu.Lock()
	if f.closed || seq != f.submitSeq || f.step != StepConfirming {
		f.mu.Unlock()
		return
	}
	f.submitting = false

	var fire func(models.BookingResult)
	var fireResult models.BookingResult
	var slotTaken *models.SlotUnavailableError

	switch {
	case err == nil:
		f.step = StepSuccess
		f.result = result
		if !f.bookedFired && f.onBooked != nil {
			f.bookedFired = true
			fire = f.onBooked
			fireResult = *result
		}
		if f.countdown > 0 {
			f.countdownT = time.AfterFunc(f.countdown, f.Done)
		}
	case errors.As(err, &slotTaken):
		// Lost the race for the slot. Banner up, slot gone, window refetched.
		f.step = StepFillForm
		f.slot = nil
		f.slotExpired = true
		f.errMsg = ""
	default:
		f.step = StepFillForm
		f.errMsg = msgBookingFailed
	}
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	switch {
	case err == nil:
		f.logger.Info("booking flow completed",
			zap.String("session_id", result.SessionID))
		f.avail.Invalidate()
	case slotTaken != nil:
		f.logger.Info("slot lost before confirmation",
			zap.String("detail", slotTaken.Detail))
		f.avail.Refresh()
	default:
		// The slot itself may still be fine, so it stays selected for a manual
		// retry, but the window gets refetched in the background.
		f.logger.Warn("booking submission failed", zap.Error(err))
		f.avail.Refresh()
	}

	f.publish(view, obs)
	if fire != nil {
		fire(fireResult)
	}
}

// Done leaves the success screen. Explicit navigation and the countdown
// funnel through here; whichever runs first wins and the callback fires
// exactly once.
func (f *Flow) Done() {
	f.mu.Lock()
	if f.closed || f.step != StepSuccess || f.doneFired {
		f.mu.Unlock()
		return
	}
	f.doneFired = true
	f.stopCountdownLocked()
	fn := f.onDone
	view, obs := f.snapshotLocked()
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
	f.publish(view, obs)
}

// CancelCountdown stops the success auto-advance; the patient stays until
// they leave on their own.
func (f *Flow) CancelCountdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCountdownLocked()
}

// Close tears the wizard down. Every later event and any in-flight booking
// outcome is dropped; callbacks that have not fired never will. A polling
// pause the flow still holds is released, so the next wizard over the same
// store starts with live data.
func (f *Flow) Close() {
	f.mu.Lock()
	resume := f.holdsPause
	f.holdsPause = false
	f.closed = true
	f.stopCountdownLocked()
	f.mu.Unlock()

	if resume {
		f.avail.Resume()
	}
}

func (f *Flow) stopCountdownLocked() {
	if f.countdownT != nil {
		f.countdownT.Stop()
		f.countdownT = nil
	}
}

func (f *Flow) snapshotLocked() (View, []func(View)) {
	obs := append([]func(View){}, f.observers...)
	return f.viewLocked(), obs
}

func (f *Flow) viewLocked() View {
	v := View{
		Step:         f.step,
		SelectedDate: f.date,
		Details:      f.details,
		ErrorMessage: f.errMsg,
		SlotExpired:  f.slotExpired,
		Submitting:   f.submitting,
	}
	if f.slot != nil {
		slot := *f.slot
		v.SelectedSlot = &slot
	}
	if len(f.fieldErrors) > 0 {
		v.FieldErrors = make(map[string]string, len(f.fieldErrors))
		for k, msg := range f.fieldErrors {
			v.FieldErrors[k] = msg
		}
	}
	if f.result != nil {
		result := *f.result
		v.Result = &result
	}
	return v
}

func (f *Flow) publish(view View, observers []func(View)) {
	for _, fn := range observers {
		fn(view)
	}
}

func trimDetails(d models.ContactDetails) models.ContactDetails {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}
