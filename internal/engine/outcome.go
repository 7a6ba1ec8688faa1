package engine

import (
	"errors"
	"time"

	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/portal"
	"visa-slot-backend/internal/selector"
)

// Step tags written on every SystemLog entry of a cycle.
const (
	StepSelectCredential = "select_credential"
	StepOpenSession      = "open_session"
	StepScanSlots        = "scan_slots"
	StepCaptcha          = "captcha"
	StepCaptchaUnsolved  = "captcha_unsolved"
	StepBookSlot         = "book_slot"
	StepCloseSession     = "close_session"
	StepCredentialTest   = "credential_test"
)

// Outcome is the structured result of one check cycle. Err is nil for a clean
// cycle; zero slots found is still a clean cycle.
type Outcome struct {
	CredentialID     string                  `json:"credential_id,omitempty"`
	Slots            []model.AppointmentSlot `json:"slots"`
	CaptchaSolved    bool                    `json:"captcha_solved"`
	BookingAttempted bool                    `json:"booking_attempted"`
	BookedSlotID     string                  `json:"booked_slot_id,omitempty"`
	Booking          *portal.BookingResult   `json:"booking_result,omitempty"`
	Err              error                   `json:"-"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       time.Time               `json:"finished_at"`
}

// Booked reports whether the cycle ended with a confirmed booking.
func (o Outcome) Booked() bool {
	return o.Booking != nil && o.Booking.Status == model.SlotBooked
}

// SessionFailed reports whether the cycle ended with a session error.
func (o Outcome) SessionFailed() bool {
	var se *SessionError
	return errors.As(o.Err, &se)
}

// Label classifies the outcome for metrics and API responses.
func (o Outcome) Label() string {
	switch {
	case o.Err == nil:
		return "ok"
	case errors.Is(o.Err, selector.ErrNoCredentialAvailable):
		return "no_credential"
	case o.SessionFailed():
		return "session_error"
	case errors.Is(o.Err, ErrCaptchaUnresolved):
		return "captcha_unresolved"
	case errors.Is(o.Err, ErrBookingRejected):
		return "booking_rejected"
	}
	return "error"
}

// Duration is the wall time of the cycle.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
