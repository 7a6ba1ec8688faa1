package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Applicant is a person profile used to fill the booking form.
type Applicant struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	FirstName          string    `gorm:"size:128;not null" json:"first_name"`
	LastName           string    `gorm:"size:128;not null" json:"last_name"`
	PassportNumber     string    `gorm:"size:64;not null" json:"passport_number"`
	Nationality        string    `gorm:"size:64;not null" json:"nationality"`
	PhoneNumber        string    `gorm:"size:64;not null" json:"phone_number"`
	Email              string    `gorm:"size:256;not null" json:"email"`
	DateOfBirth        string    `gorm:"size:32" json:"date_of_birth"`
	Gender             string    `gorm:"size:32" json:"gender"`
	Address            string    `gorm:"size:512" json:"address"`
	City               string    `gorm:"size:128" json:"city"`
	PostalCode         string    `gorm:"size:32" json:"postal_code"`
	Country            string    `gorm:"size:64" json:"country"`
	EmergencyContact   string    `gorm:"size:128" json:"emergency_contact"`
	EmergencyPhone     string    `gorm:"size:64" json:"emergency_phone"`
	VisaTypePreference *VisaType `gorm:"size:64" json:"visa_type_preference"`
	Notes              string    `gorm:"type:text" json:"notes"`
	IsPrimary          bool      `gorm:"not null;uniqueIndex:idx_applicants_single_primary,where:is_primary = true" json:"is_primary"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (a *Applicant) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// FullName joins first and last name.
func (a Applicant) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a Applicant) Validate() error {
	switch {
	case strings.TrimSpace(a.FirstName) == "":
		return errors.New("first_name is required")
	case strings.TrimSpace(a.LastName) == "":
		return errors.New("last_name is required")
	case strings.TrimSpace(a.PassportNumber) == "":
		return errors.New("passport_number is required")
	case strings.TrimSpace(a.Nationality) == "":
		return errors.New("nationality is required")
	case strings.TrimSpace(a.PhoneNumber) == "":
		return errors.New("phone_number is required")
	case !strings.Contains(a.Email, "@"):
		return errors.New("email must be a valid address")
	}
	if a.VisaTypePreference != nil && !a.VisaTypePreference.Valid() {
		return errors.New("visa_type_preference is not a known visa type")
	}
	return nil
}

// ApplicantPatch is a partial update of an Applicant; only present fields are written.
type ApplicantPatch struct {
	FirstName          Field[string]    `json:"first_name"`
	LastName           Field[string]    `json:"last_name"`
	PassportNumber     Field[string]    `json:"passport_number"`
	Nationality        Field[string]    `json:"nationality"`
	PhoneNumber        Field[string]    `json:"phone_number"`
	Email              Field[string]    `json:"email"`
	DateOfBirth        Field[string]    `json:"date_of_birth"`
	Gender             Field[string]    `json:"gender"`
	Address            Field[string]    `json:"address"`
	City               Field[string]    `json:"city"`
	PostalCode         Field[string]    `json:"postal_code"`
	Country            Field[string]    `json:"country"`
	EmergencyContact   Field[string]    `json:"emergency_contact"`
	EmergencyPhone     Field[string]    `json:"emergency_phone"`
	VisaTypePreference Field[*VisaType] `json:"visa_type_preference"`
	Notes              Field[string]    `json:"notes"`
	IsPrimary          Field[bool]      `json:"is_primary"`
}

func (p ApplicantPatch) Validate() error {
	for name, f := range map[string]Field[string]{
		"first_name":      p.FirstName,
		"last_name":       p.LastName,
		"passport_number": p.PassportNumber,
		"nationality":     p.Nationality,
		"phone_number":    p.PhoneNumber,
	} {
		if f.Set && strings.TrimSpace(f.Value) == "" {
			return errors.New(name + " cannot be empty")
		}
	}
	if p.Email.Set && !strings.Contains(p.Email.Value, "@") {
		return errors.New("email must be a valid address")
	}
	if p.VisaTypePreference.Set && p.VisaTypePreference.Value != nil && !p.VisaTypePreference.Value.Valid() {
		return errors.New("visa_type_preference is not a known visa type")
	}
	return nil
}

// Columns maps the present fields to their database columns.
func (p ApplicantPatch) Columns() map[string]any {
	cols := make(map[string]any)
	put(cols, "first_name", p.FirstName)
	put(cols, "last_name", p.LastName)
	put(cols, "passport_number", p.PassportNumber)
	put(cols, "nationality", p.Nationality)
	put(cols, "phone_number", p.PhoneNumber)
	put(cols, "email", p.Email)
	put(cols, "date_of_birth", p.DateOfBirth)
	put(cols, "gender", p.Gender)
	put(cols, "address", p.Address)
	put(cols, "city", p.City)
	put(cols, "postal_code", p.PostalCode)
	put(cols, "country", p.Country)
	put(cols, "emergency_contact", p.EmergencyContact)
	put(cols, "emergency_phone", p.EmergencyPhone)
	put(cols, "visa_type_preference", p.VisaTypePreference)
	put(cols, "notes", p.Notes)
	put(cols, "is_primary", p.IsPrimary)
	return cols
}
