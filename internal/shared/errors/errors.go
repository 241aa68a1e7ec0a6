package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("conflict")
	ErrValidation             = errors.New("validation error")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrSpecializationMismatch = errors.New("specialization mismatch")
	ErrMissingAssignment      = errors.New("missing assignment")
	ErrHasActiveWork          = errors.New("technician has active work")
	ErrSequenceExhausted      = errors.New("complaint sequence exhausted")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Message:    message,
		Code:       "CONFLICT",
		HTTPStatus: http.StatusConflict,
	}
}

// InvalidTransition reports a status change the lifecycle does not allow
func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Message:    fmt.Sprintf("cannot change status from %s to %s", from, to),
		Code:       "INVALID_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"from": from, "to": to},
	}
}

// SpecializationMismatch reports a technician who cannot handle a category
func SpecializationMismatch(specialization, category string) *AppError {
	return &AppError{
		Err: ErrSpecializationMismatch,
		Message: fmt.Sprintf("technician specialization (%s) does not match complaint category (%s)",
			specialization, category),
		Code:       "SPECIALIZATION_MISMATCH",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]string{"specialization": specialization, "category": category},
	}
}

// MissingAssignment reports an attempt to enter assigned without an assignee
func MissingAssignment(complaintID string) *AppError {
	return &AppError{
		Err:        ErrMissingAssignment,
		Message:    "complaint has no assigned technician",
		Code:       "MISSING_ASSIGNMENT",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]string{"complaint_id": complaintID},
	}
}

// HasActiveWork reports a technician that still holds open complaints
func HasActiveWork(technicianID string, active int) *AppError {
	return &AppError{
		Err: ErrHasActiveWork,
		Message: fmt.Sprintf("cannot delete technician with %d active complaint(s), reassign or resolve them first",
			active),
		Code:       "HAS_ACTIVE_WORK",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"technician_id": technicianID, "active": fmt.Sprint(active)},
	}
}

// SequenceExhausted reports that no complaint code is left to allocate
func SequenceExhausted(limit int) *AppError {
	return &AppError{
		Err:        ErrSequenceExhausted,
		Message:    fmt.Sprintf("complaint sequence exhausted after %d complaints", limit),
		Code:       "SEQUENCE_EXHAUSTED",
		HTTPStatus: http.StatusInsufficientStorage,
		Details:    map[string]string{"max": fmt.Sprint(limit)},
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr.Err,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
