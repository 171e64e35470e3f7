package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Enabled *bool  `json:"enabled" validate:"required"`
	Reason  string `json:"reason,omitempty" validate:"max=5"`
	Format  string `json:"format" validate:"omitempty,oneof=json csv"`
}

func TestValidateStruct(t *testing.T) {
	yes := true

	tests := []struct {
		name       string
		input      statusBody
		wantErr    bool
		wantFields []string
	}{
		{
			name:  "valid",
			input: statusBody{Enabled: &yes, Format: "csv"},
		},
		{
			name:       "missing required pointer",
			input:      statusBody{},
			wantErr:    true,
			wantFields: []string{"enabled"},
		},
		{
			name:       "too long and bad enum",
			input:      statusBody{Enabled: &yes, Reason: "far too long", Format: "xml"},
			wantErr:    true,
			wantFields: []string{"reason", "format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var got []string
			for _, f := range GetValidationFields(err) {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestValidationMessages(t *testing.T) {
	err := ValidateStruct(&statusBody{})
	fields := GetValidationFields(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "enabled is required", fields[0].Message)
	assert.Equal(t, "Validation failed", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}

func TestParsePositiveInt(t *testing.T) {
	n, err := ParsePositiveInt("3", "version")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := ParsePositiveInt(bad, "version")
		assert.Error(t, err, bad)
	}
}
