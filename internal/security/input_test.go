package security

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputValidator_ValidInput(t *testing.T) {
	validator := NewInputValidator()
	validInputs := []string{
		"Ate rice with chicken adobo",
		"Felt dizzy after lunch, checked sugar at 3pm",
		"  a",
		"Kumain ng isda 🐟",
		strings.Repeat("ab", 500),
		strings.Repeat("a", 100),
	}

	for _, input := range validInputs {
		assert.NoError(t, validator.Validate(input), input)
	}
}

func TestInputValidator_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"too large", strings.Repeat("ab", 3000), ErrInputTooLarge},
		{"null byte", "hello\x00world", ErrNullByteDetected},
		{"leading null byte", "\x00test", ErrNullByteDetected},
		{"invalid utf8", "bad \xff\xfe", ErrInvalidUTF8},
		{"whitespace", strings.Repeat(" ", 40) + "a", ErrHighWhitespaceRatio},
		{"repetition", strings.Repeat("a", 101), ErrRepetitiveContent},
	}

	validator := NewInputValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, validator.Validate(tt.input), tt.want)
		})
	}
}

func TestInputValidator_CustomLimits(t *testing.T) {
	validator := &InputValidator{MaxSize: 10}
	assert.NoError(t, validator.Validate(strings.Repeat(" ", 10)))
	assert.ErrorIs(t, validator.Validate(strings.Repeat("a", 11)), ErrInputTooLarge)
}

func TestValidateText(t *testing.T) {
	assert.NoError(t, ValidateText("notes", ""))
	assert.NoError(t, ValidateText("notes", "after breakfast"))

	err := ValidateText("notes", "bad\x00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.ErrorIs(t, err, ErrNullByteDetected)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "notes: null byte detected in input", appErr.Message)
}

func TestValidateFields(t *testing.T) {
	assert.NoError(t, ValidateFields("dish", "rice", "drinks", "water"))

	err := ValidateFields("dish", "rice", "drinks", strings.Repeat("a", 200))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, strings.HasPrefix(appErr.Message, "drinks:"))
}

func BenchmarkInputValidator_Validate(b *testing.B) {
	validator := NewInputValidator()
	input := strings.Repeat("Ate rice with chicken. ", 100)
	for i := 0; i < b.N; i++ {
		_ = validator.Validate(input)
	}
}
