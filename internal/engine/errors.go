package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptchaUnresolved marks a cycle whose CAPTCHA could not be solved; slots
	// are still recorded but no booking is attempted.
	ErrCaptchaUnresolved = errors.New("captcha unresolved")
	// ErrBookingRejected marks a booking the portal declined.
	ErrBookingRejected = errors.New("booking rejected by portal")
)

// SessionError is a recoverable portal failure (auth, network, timeout) in one step of a cycle.
type SessionError struct {
	Step string
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error in %s: %v", e.Step, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
