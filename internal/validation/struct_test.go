package validation

import (
	"testing"

	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitlistInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	ReferralCode string `json:"referral_code" validate:"max=8"`
}

func TestStruct(t *testing.T) {
	t.Parallel()

	require.NoError(t, Struct(waitlistInput{Email: "a@b.co"}))

	err := Struct(waitlistInput{})
	require.Error(t, err)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	assert.Contains(t, err.Error(), "email is required")

	err = Struct(waitlistInput{Email: "nope"})
	assert.Contains(t, err.Error(), "email must be a valid email address")

	err = Struct(waitlistInput{Email: "a@b.co", ReferralCode: "toolongcode"})
	assert.Contains(t, err.Error(), "referral_code must be at most 8 characters")
}
