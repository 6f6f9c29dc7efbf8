package models

import (
	"fmt"
	"sort"
	"strings"
)

// FetchError reports an availability read that failed after retries were
// exhausted. The message is safe to show inline in the picker.
type FetchError struct {
	Message string
}

func (e *FetchError) Error() string {
	return e.Message
}

func NewFetchError(msg string) error {
	return &FetchError{Message: msg}
}

// SlotUnavailableError means the portal rejected a booking with 409: the
// slot was taken or expired between selection and submit. It is never
// retried automatically; the patient picks another time instead.
type SlotUnavailableError struct {
	Detail string
}

func (e *SlotUnavailableError) Error() string {
	if e.Detail == "" {
		return "slot is no longer available"
	}
	return e.Detail
}

// BookingError covers every non-409 booking failure (network, 5xx, decode).
type BookingError struct {
	StatusCode int
	Message    string
}

func (e *BookingError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("booking failed (status %d): %s", e.StatusCode, e.Message)
}

func NewBookingError(status int, msg string) error {
	return &BookingError{StatusCode: status, Message: msg}
}

// ValidationError carries per-field messages for the contact form, keyed by
// wire field name ("first_name", "last_name", "email").
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid contact details: " + strings.Join(keys, ", ")
}
