// Package portal defines the contract with the appointment portal. The engine
// drives a Driver through one session per check cycle.
package portal

import (
	"context"
	"errors"
	"time"

	"visa-slot-backend/internal/model"
)

var (
	ErrAuthFailed = errors.New("authentication failed")
	ErrNetwork    = errors.New("network failure")
	ErrRejected   = errors.New("request rejected by portal")
)

// Error attaches the failing driver operation to one of the sentinel errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "portal " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Session is an authenticated portal session owned by a single cycle.
type Session struct {
	ID           string
	CredentialID string
	OpenedAt     time.Time
}

// Criteria selects which slots a scan looks for.
type Criteria struct {
	VisaType        model.VisaType
	VisaSubType     model.VisaSubType
	AppointmentType model.AppointmentType
	Members         int
}

// CriteriaFrom derives scan criteria from run settings.
func CriteriaFrom(s model.RunSettings) Criteria {
	return Criteria{
		VisaType:        s.VisaType,
		VisaSubType:     s.VisaSubType,
		AppointmentType: s.AppointmentType,
		Members:         s.NumberOfMembers,
	}
}

// SlotOffer is a slot as seen on the portal before it is recorded.
type SlotOffer struct {
	Ref          string
	Date         string
	Time         string
	Location     string
	VisaType     string
	VisaCategory string
	Capacity     int
}

// Challenge is an image-grid CAPTCHA: pick every tile matching the target.
type Challenge struct {
	TargetText  string
	TargetImage []byte
	Tiles       [][]byte
}

// BookingResult is the portal's answer to a booking attempt. Status is one of
// booked, pending or failed.
type BookingResult struct {
	Status    model.SlotStatus
	Reference string
	Message   string
}

// Driver performs the portal interactions of a check cycle.
type Driver interface {
	Open(ctx context.Context, cred model.Credential) (*Session, error)
	Scan(ctx context.Context, s *Session, c Criteria) ([]SlotOffer, error)
	// Captcha returns the pending challenge, or nil when none is shown.
	Captcha(ctx context.Context, s *Session) (*Challenge, error)
	SubmitCaptcha(ctx context.Context, s *Session, indices []int) error
	Book(ctx context.Context, s *Session, slot model.AppointmentSlot, applicant model.Applicant) (BookingResult, error)
	Close(ctx context.Context, s *Session) error
}
