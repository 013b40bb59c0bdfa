package common

import "errors"

// Error codes returned by the API. Webhook-path drops (unknown target,
// duplicate delivery) are intentionally absent: those are logged and
// acknowledged, never surfaced to the event source.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionNotActive     = "SESSION_NOT_ACTIVE"
	CodeNoParticipants       = "NO_PARTICIPANTS"
	CodeParticipantNotFound  = "PARTICIPANT_NOT_FOUND"
	CodeAmountMismatch       = "AMOUNT_MISMATCH"
	CodeAlreadyPaid          = "ALREADY_PAID"
	CodeExceedsTotal         = "EXCEEDS_TOTAL"
	CodeUnallocatedRemainder = "UNALLOCATED_REMAINDER"
	CodeInternal             = "INTERNAL"
)

// AppError carries an API error code and HTTP status alongside the cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
