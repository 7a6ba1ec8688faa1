package portal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"visa-slot-backend/internal/model"
)

func TestError_Unwrap(t *testing.T) {
	err := fmt.Errorf("scan: %w", &Error{Op: "scan", Err: ErrNetwork})

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.False(t, errors.Is(err, ErrAuthFailed))

	var pe *Error
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "scan", pe.Op)
	assert.Equal(t, "portal scan: network failure", pe.Error())
}

func TestCriteriaFrom(t *testing.T) {
	c := CriteriaFrom(model.RunSettings{
		VisaType:        model.VisaTourist,
		VisaSubType:     model.SubTypeShortStay,
		AppointmentType: model.AppointmentFamily,
		NumberOfMembers: 3,
	})
	assert.Equal(t, model.VisaTourist, c.VisaType)
	assert.Equal(t, model.SubTypeShortStay, c.VisaSubType)
	assert.Equal(t, model.AppointmentFamily, c.AppointmentType)
	assert.Equal(t, 3, c.Members)
}
