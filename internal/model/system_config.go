package model

import (
	"fmt"
	"time"
)

// SystemConfigID is the primary key of the singleton SystemConfig row.
const SystemConfigID = "system"

// MinCheckInterval is the shortest polling interval accepted at start.
const MinCheckInterval = time.Minute

// SystemConfig is the persisted lifecycle state, run settings and counters of the engine.
type SystemConfig struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	Status               SystemStatus    `gorm:"size:16;not null" json:"status"`
	CheckIntervalMinutes int             `gorm:"not null" json:"check_interval_minutes"`
	VisaType             VisaType        `gorm:"size:64;not null" json:"visa_type"`
	VisaSubType          VisaSubType     `gorm:"size:64;not null" json:"visa_subtype"`
	AppointmentType      AppointmentType `gorm:"size:32;not null" json:"appointment_type"`
	NumberOfMembers      int             `gorm:"not null" json:"number_of_members"`
	LastCheck            *time.Time      `json:"last_check"`
	StartedAt            *time.Time      `json:"started_at"`
	TotalChecks          int64           `gorm:"not null" json:"total_checks"`
	SlotsFound           int64           `gorm:"not null" json:"slots_found"`
	SuccessfulBookings   int64           `gorm:"not null" json:"successful_bookings"`
	ErrorCount           int64           `gorm:"not null" json:"error_count"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// DefaultSystemConfig returns the configuration created on first start.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		ID:                   SystemConfigID,
		Status:               StatusStopped,
		CheckIntervalMinutes: 2,
		VisaType:             VisaTourist,
		VisaSubType:          SubTypeShortStay,
		AppointmentType:      AppointmentIndividual,
		NumberOfMembers:      1,
	}
}

// Settings extracts the run settings currently stored in c.
func (c SystemConfig) Settings() RunSettings {
	return RunSettings{
		CheckInterval:   time.Duration(c.CheckIntervalMinutes) * time.Minute,
		VisaType:        c.VisaType,
		VisaSubType:     c.VisaSubType,
		AppointmentType: c.AppointmentType,
		NumberOfMembers: c.NumberOfMembers,
	}
}

// ApplySettings overwrites the run settings of c with s.
func (c *SystemConfig) ApplySettings(s RunSettings) {
	c.CheckIntervalMinutes = int(s.CheckInterval / time.Minute)
	c.VisaType = s.VisaType
	c.VisaSubType = s.VisaSubType
	c.AppointmentType = s.AppointmentType
	c.NumberOfMembers = s.NumberOfMembers
}

// Uptime returns how long the engine has been running, or zero when it is not.
func (c SystemConfig) Uptime(now time.Time) time.Duration {
	if c.Status != StatusRunning || c.StartedAt == nil {
		return 0
	}
	return now.Sub(*c.StartedAt)
}

// RunSettings is the immutable copy of settings a single cycle runs with.
type RunSettings struct {
	CheckInterval   time.Duration
	VisaType        VisaType
	VisaSubType     VisaSubType
	AppointmentType AppointmentType
	NumberOfMembers int
}

// Validate rejects settings the engine cannot run with.
func (s RunSettings) Validate() error {
	if s.CheckInterval < MinCheckInterval {
		return &ConfigError{Field: "check_interval_minutes", Reason: fmt.Sprintf("must be at least %s", MinCheckInterval)}
	}
	if s.CheckInterval%time.Minute != 0 {
		return &ConfigError{Field: "check_interval_minutes", Reason: "must be a whole number of minutes"}
	}
	if !s.VisaType.Valid() {
		return &ConfigError{Field: "visa_type", Reason: fmt.Sprintf("unknown visa type %q", s.VisaType)}
	}
	if !s.VisaType.Allows(s.VisaSubType) {
		return &ConfigError{Field: "visa_subtype", Reason: fmt.Sprintf("%q is not a subtype of %q", s.VisaSubType, s.VisaType)}
	}
	if !s.AppointmentType.Valid() {
		return &ConfigError{Field: "appointment_type", Reason: fmt.Sprintf("unknown appointment type %q", s.AppointmentType)}
	}
	if s.NumberOfMembers < 1 {
		return &ConfigError{Field: "number_of_members", Reason: "must be at least 1"}
	}
	if s.AppointmentType == AppointmentIndividual && s.NumberOfMembers != 1 {
		return &ConfigError{Field: "number_of_members", Reason: "individual appointments are for exactly one member"}
	}
	return nil
}

// ConfigError reports an invalid start configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
