package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential is one login identity for the portal.
type Credential struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	Name               string     `gorm:"size:128;not null" json:"credential_name"`
	Email              string     `gorm:"size:256;not null" json:"email"`
	Secret             string     `gorm:"size:512;not null" json:"-"`
	IsActive           bool       `gorm:"not null;index" json:"is_active"`
	IsPrimary          bool       `gorm:"not null;uniqueIndex:idx_credentials_single_primary,where:is_primary = true" json:"is_primary"`
	TotalAttempts      int64      `gorm:"not null" json:"total_attempts"`
	SuccessfulAttempts int64      `gorm:"not null" json:"successful_attempts"`
	LastUsed           *time.Time `json:"last_used"`
	Notes              string     `gorm:"type:text" json:"notes"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// SuccessRate is successful/total attempts, computed from the counters on every read.
func (c Credential) SuccessRate() float64 {
	if c.TotalAttempts <= 0 {
		return 0
	}
	return float64(c.SuccessfulAttempts) / float64(c.TotalAttempts)
}

// FailedAttempts is the number of attempts that did not succeed.
func (c Credential) FailedAttempts() int64 {
	return c.TotalAttempts - c.SuccessfulAttempts
}

func (c Credential) MarshalJSON() ([]byte, error) {
	type plain Credential
	return json.Marshal(struct {
		plain
		SuccessRate    float64 `json:"success_rate"`
		FailedAttempts int64   `json:"failed_attempts"`
	}{plain(c), c.SuccessRate(), c.FailedAttempts()})
}

// Validate checks the fields an operator must supply.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("credential_name is required")
	}
	if !strings.Contains(c.Email, "@") {
		return errors.New("email must be a valid address")
	}
	if c.Secret == "" {
		return errors.New("password is required")
	}
	return nil
}

// CredentialPatch is a partial update of a Credential; only present fields are written.
type CredentialPatch struct {
	Name      Field[string] `json:"credential_name"`
	Email     Field[string] `json:"email"`
	Secret    Field[string] `json:"password"`
	IsActive  Field[bool]   `json:"is_active"`
	IsPrimary Field[bool]   `json:"is_primary"`
	Notes     Field[string] `json:"notes"`
}

// Validate rejects present fields that would break a Credential.
func (p CredentialPatch) Validate() error {
	if p.Name.Set && strings.TrimSpace(p.Name.Value) == "" {
		return errors.New("credential_name cannot be empty")
	}
	if p.Email.Set && !strings.Contains(p.Email.Value, "@") {
		return errors.New("email must be a valid address")
	}
	if p.Secret.Set && p.Secret.Value == "" {
		return errors.New("password cannot be empty")
	}
	return nil
}

// Columns maps the present fields to their database columns.
func (p CredentialPatch) Columns() map[string]any {
	cols := make(map[string]any)
	put(cols, "name", p.Name)
	put(cols, "email", p.Email)
	put(cols, "secret", p.Secret)
	put(cols, "is_active", p.IsActive)
	put(cols, "is_primary", p.IsPrimary)
	put(cols, "notes", p.Notes)
	return cols
}
