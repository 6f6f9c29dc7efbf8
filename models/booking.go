package models

import "time"

// ContactDetails is the new-patient form state. It survives failed submits so
// the patient never retypes a form.
type ContactDetails struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"omitempty"`
	Notes     string `json:"notes" validate:"omitempty"`
}

// BookingRequest is the wire payload of POST /api/booking/book. It is built
// once per submission from the saved contact details, the selected slot and
// the detected timezone.
type BookingRequest struct {
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Timezone      string    `json:"timezone"` // IANA identifier, e.g. "America/Los_Angeles"
	Notes         string    `json:"notes,omitempty"`
	SlotStartTime time.Time `json:"slot_start_time"`
	ConsultantID  string    `json:"consultant_id"`
}

// BookingResult is the portal's confirmation of a successful reservation.
type BookingResult struct {
	SessionID      string `json:"session_id"`
	ClientRecordID string `json:"client_record_id"`
	IsNewClient    bool   `json:"is_new_client"`
}
