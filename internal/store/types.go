package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"visa-slot-backend/internal/model"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSlotTransition is returned when a slot is not in a status that may move to the requested one.
	ErrSlotTransition = errors.New("slot status transition not allowed")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// LogFilter narrows a log listing. Zero values mean "any".
type LogFilter struct {
	Level model.LogLevel
	Step  string
	Limit int
}

// SlotFilter narrows a slot listing. Zero values mean "any".
type SlotFilter struct {
	Status model.SlotStatus
	Limit  int
}

// ListFilter bounds a plain listing.
type ListFilter struct {
	ActiveOnly bool
	Limit      int
}

// LogSink appends audit entries.
type LogSink interface {
	AppendLog(ctx context.Context, entry *model.SystemLog) error
}

// ConfigStore persists the singleton system configuration and counters.
type ConfigStore interface {
	LoadSystemConfig(ctx context.Context) (model.SystemConfig, error)
	SaveSystemConfig(ctx context.Context, cfg model.SystemConfig) error
}

// SlotStore records discovered slots and their booking outcome.
type SlotStore interface {
	InsertSlots(ctx context.Context, slots []model.AppointmentSlot) error
	TransitionSlot(ctx context.Context, id string, to model.SlotStatus, details datatypes.JSONMap) error
	ListSlots(ctx context.Context, f SlotFilter) ([]model.AppointmentSlot, int64, error)
}

// CredentialStore manages login credentials and their attempt counters.
type CredentialStore interface {
	ListCredentials(ctx context.Context, f ListFilter) ([]model.Credential, int64, error)
	GetCredential(ctx context.Context, id string) (model.Credential, error)
	PrimaryCredential(ctx context.Context) (model.Credential, error)
	CreateCredential(ctx context.Context, c *model.Credential) error
	UpdateCredential(ctx context.Context, id string, patch model.CredentialPatch) (model.Credential, error)
	SetPrimaryCredential(ctx context.Context, id string) (model.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
	RecordCredentialAttempt(ctx context.Context, id string, success bool, at time.Time) error
}

// ApplicantStore manages applicant profiles.
type ApplicantStore interface {
	ListApplicants(ctx context.Context, f ListFilter) ([]model.Applicant, int64, error)
	GetApplicant(ctx context.Context, id string) (model.Applicant, error)
	PrimaryApplicant(ctx context.Context) (model.Applicant, error)
	CreateApplicant(ctx context.Context, a *model.Applicant) error
	UpdateApplicant(ctx context.Context, id string, patch model.ApplicantPatch) (model.Applicant, error)
	SetPrimaryApplicant(ctx context.Context, id string) (model.Applicant, error)
	DeleteApplicant(ctx context.Context, id string) error
}

// Store defines the interface for all database operations.
type Store interface {
	LogSink
	ConfigStore
	SlotStore
	CredentialStore
	ApplicantStore
	ListLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

// sourcesOf returns the statuses a slot may be in to move to status to.
func sourcesOf(to model.SlotStatus) []model.SlotStatus {
	var from []model.SlotStatus
	for _, s := range []model.SlotStatus{model.SlotAvailable, model.SlotPending, model.SlotBooked, model.SlotFailed} {
		if s.CanTransitionTo(to) {
			from = append(from, s)
		}
	}
	return from
}
