package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppointmentSlot is one bookable unit discovered on the portal.
type AppointmentSlot struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	FoundAt         time.Time         `gorm:"not null;index" json:"found_at"`
	AppointmentDate string            `gorm:"size:32;not null" json:"appointment_date"`
	AppointmentTime string            `gorm:"size:32;not null" json:"appointment_time"`
	VisaType        string            `gorm:"size:64;not null" json:"visa_type"`
	VisaCategory    string            `gorm:"size:64;not null" json:"visa_category"`
	Location        string            `gorm:"size:128;not null" json:"location"`
	AvailableSlots  int               `gorm:"not null" json:"available_slots"`
	Status          SlotStatus        `gorm:"size:16;not null;index" json:"status"`
	BookingDetails  datatypes.JSONMap `json:"booking_details,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (s *AppointmentSlot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SlotAvailable
	}
	return nil
}

// Fits reports whether the slot can take a party of the given size.
func (s AppointmentSlot) Fits(members int) bool {
	return s.Status == SlotAvailable && s.AvailableSlots >= members
}
