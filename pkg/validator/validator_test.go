package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
)

type overrideInput struct {
	Date      string `json:"override_date" validate:"required,datetime=2006-01-02"`
	Total     int    `json:"total_slots" validate:"gte=0"`
	Available int    `json:"available_slots" validate:"gte=0,ltefield=Total"`
}

func TestValidate(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(&overrideInput{Date: "2025-01-05", Total: 4, Available: 4}))

	err := v.Validate(&overrideInput{Date: "05/01/2025", Total: 4, Available: 5})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBadRequest))
	assert.Contains(t, err.Error(), "override_date must match 2006-01-02")
	assert.Contains(t, err.Error(), "available_slots must not exceed Total")

	fields := Fields(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "override_date", fields[0].Field)
}

func TestFieldsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, Fields(assert.AnError))
}
