// Package security checks patient supplied text before it is stored and
// scrubs credentials from strings before they are logged.
package security

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
)

var (
	ErrInputTooLarge       = errors.New("input exceeds maximum size")
	ErrNullByteDetected    = errors.New("null byte detected in input")
	ErrInvalidUTF8         = errors.New("input is not valid UTF-8")
	ErrHighWhitespaceRatio = errors.New("suspicious whitespace ratio")
	ErrRepetitiveContent   = errors.New("excessive repetition detected")
)

// MaxTextField bounds free-text record fields such as notes
const MaxTextField = 4 * 1024

type InputValidator struct {
	MaxSize            int
	MaxWhitespaceRatio float64
	MaxRepetition      int
	MinRatioLength     int // the whitespace ratio is only checked from this length on
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:            MaxTextField,
		MaxWhitespaceRatio: 0.8,
		MaxRepetition:      100,
		MinRatioLength:     32,
	}
}

func (v *InputValidator) Validate(input string) error {
	if len(input) > v.MaxSize {
		return ErrInputTooLarge
	}

	for i := 0; i < len(input); i++ {
		if input[i] == 0 {
			return ErrNullByteDetected
		}
	}
	if !utf8.ValidString(input) {
		return ErrInvalidUTF8
	}

	if v.MaxWhitespaceRatio > 0 && len(input) >= v.MinRatioLength {
		whitespaceCount := 0
		for _, r := range input {
			if unicode.IsSpace(r) {
				whitespaceCount++
			}
		}
		ratio := float64(whitespaceCount) / float64(utf8.RuneCountInString(input))
		if ratio > v.MaxWhitespaceRatio {
			return ErrHighWhitespaceRatio
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	var prev rune
	consecutiveCount := 0
	for i, r := range input {
		if i > 0 && r == prev {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
		prev = r
	}

	return false
}

var defaultValidator = NewInputValidator()

// ValidateText checks one named field and reports a validation error that
// names it. Empty text is valid.
func ValidateText(field, text string) error {
	if text == "" {
		return nil
	}
	if err := defaultValidator.Validate(text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrValidation.Code, fmt.Sprintf("%s: %v", field, err))
	}
	return nil
}

// ValidateFields runs ValidateText over name, value pairs and returns the
// first failure
func ValidateFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ValidateText(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
