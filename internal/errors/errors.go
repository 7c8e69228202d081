package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so sentinel values work with errors.Is after
// New/Wrap produced a copy with a different message or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrStorage = &AppError{Code: "STORE_001", Message: "device storage failure"}

	ErrReminderNotFound = &AppError{Code: "REMINDER_001", Message: "reminder not found"}
	ErrReminderCorrupt  = &AppError{Code: "REMINDER_002", Message: "invalid persisted reminders"}

	ErrMealOrder  = &AppError{Code: "MEAL_001", Message: "meal order violation"}
	ErrValidation = &AppError{Code: "VALID_001", Message: "validation failed"}

	ErrPredictionStatus      = &AppError{Code: "PRED_001", Message: "prediction service returned an error"}
	ErrPredictionUnavailable = &AppError{Code: "PRED_002", Message: "prediction service unavailable"}
	ErrPredictionRateLimited = &AppError{Code: "PRED_003", Message: "prediction rate limit exceeded"}

	ErrChannelNotConfigured = &AppError{Code: "CHAN_001", Message: "channel not configured"}
	ErrChannelUnavailable   = &AppError{Code: "CHAN_002", Message: "channel unavailable"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// HTTPStatus maps an error code onto the status the API responds with.
func HTTPStatus(err error) int {
	code := GetCode(err)
	switch {
	case code == "REMINDER_001" || code == "GEN_001":
		return 404
	case code == "MEAL_001" || code == "VALID_001" || code == "GEN_002":
		return 400
	case code == "AUTH_001":
		return 401
	case code == "AUTH_002":
		return 403
	case code == "PRED_001":
		return 502
	case code == "PRED_003":
		return 429
	case strings.HasPrefix(code, "PRED_"):
		return 503
	default:
		return 500
	}
}
