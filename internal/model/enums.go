package model

import "fmt"

// SystemStatus is the lifecycle state of the automation engine.
type SystemStatus string

const (
	StatusStopped SystemStatus = "stopped"
	StatusRunning SystemStatus = "running"
	StatusPaused  SystemStatus = "paused"
	StatusError   SystemStatus = "error"
)

func (s SystemStatus) Valid() bool {
	switch s {
	case StatusStopped, StatusRunning, StatusPaused, StatusError:
		return true
	}
	return false
}

// LogLevel is the severity of a SystemLog entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
	LevelSuccess LogLevel = "success"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return true
	}
	return false
}

// SlotStatus tracks an appointment slot through a booking attempt.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotFailed    SlotStatus = "failed"
	SlotPending   SlotStatus = "pending"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotFailed, SlotPending:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s SlotStatus) Terminal() bool {
	switch s {
	case SlotBooked, SlotFailed:
		return true
	case SlotAvailable, SlotPending:
		return false
	}
	return false
}

// CanTransitionTo reports whether a slot in status s may move to next.
// Slots never return to available.
func (s SlotStatus) CanTransitionTo(next SlotStatus) bool {
	switch s {
	case SlotAvailable:
		return next == SlotBooked || next == SlotFailed || next == SlotPending
	case SlotPending:
		return next == SlotBooked || next == SlotFailed
	case SlotBooked, SlotFailed:
		return false
	}
	return false
}

// VisaType is the top-level visa category offered by the portal.
type VisaType string

const (
	VisaTourist       VisaType = "Tourist Visa"
	VisaBusiness      VisaType = "Business Visa"
	VisaStudent       VisaType = "Student Visa"
	VisaWork          VisaType = "Work Visa"
	VisaFamilyReunion VisaType = "Family Reunion Visa"
)

// VisaSubType narrows a VisaType.
type VisaSubType string

const (
	SubTypeShortStay     VisaSubType = "Short Stay"
	SubTypeLongStay      VisaSubType = "Long Stay"
	SubTypeTemporaryWork VisaSubType = "Temporary Work"
	SubTypePermanentWork VisaSubType = "Permanent Work"
	SubTypeSpouse        VisaSubType = "Spouse Visa"
	SubTypeChild         VisaSubType = "Child Visa"
)

// AppointmentType distinguishes single-person from group appointments.
type AppointmentType string

const (
	AppointmentIndividual AppointmentType = "Individual"
	AppointmentFamily     AppointmentType = "Family"
)

func (a AppointmentType) Valid() bool {
	switch a {
	case AppointmentIndividual, AppointmentFamily:
		return true
	}
	return false
}

// VisaTypes lists the supported visa types in display order.
var VisaTypes = []VisaType{VisaTourist, VisaBusiness, VisaStudent, VisaWork, VisaFamilyReunion}

// AppointmentTypes lists the supported appointment types in display order.
var AppointmentTypes = []AppointmentType{AppointmentIndividual, AppointmentFamily}

// SubTypes returns the subtypes the portal accepts for t, or nil for an unknown type.
func (t VisaType) SubTypes() []VisaSubType {
	switch t {
	case VisaTourist, VisaBusiness, VisaStudent:
		return []VisaSubType{SubTypeShortStay, SubTypeLongStay}
	case VisaWork:
		return []VisaSubType{SubTypeTemporaryWork, SubTypePermanentWork}
	case VisaFamilyReunion:
		return []VisaSubType{SubTypeSpouse, SubTypeChild}
	}
	return nil
}

func (t VisaType) Valid() bool {
	return t.SubTypes() != nil
}

// Allows reports whether sub is a subtype of t.
func (t VisaType) Allows(sub VisaSubType) bool {
	for _, s := range t.SubTypes() {
		if s == sub {
			return true
		}
	}
	return false
}

// ParseVisaType converts a raw string into a VisaType.
func ParseVisaType(raw string) (VisaType, error) {
	t := VisaType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown visa type %q", raw)
	}
	return t, nil
}

// ParseAppointmentType converts a raw string into an AppointmentType.
func ParseAppointmentType(raw string) (AppointmentType, error) {
	a := AppointmentType(raw)
	if !a.Valid() {
		return "", fmt.Errorf("unknown appointment type %q", raw)
	}
	return a, nil
}

// ParseSlotStatus converts a raw string into a SlotStatus.
func ParseSlotStatus(raw string) (SlotStatus, error) {
	s := SlotStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown slot status %q", raw)
	}
	return s, nil
}

// ParseLogLevel converts a raw string into a LogLevel.
func ParseLogLevel(raw string) (LogLevel, error) {
	l := LogLevel(raw)
	if !l.Valid() {
		return "", fmt.Errorf("unknown log level %q", raw)
	}
	return l, nil
}
