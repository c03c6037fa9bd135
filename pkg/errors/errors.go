package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

// Is matches any AppError carrying the same code, so wrapped rejections
// still satisfy errors.Is against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

const (
	CodeNotFound ErrorCode = iota + 1000
	CodeBadRequest
	CodeUnauthorized
	CodeForbidden
	CodeInternal
	CodeConflict
	CodeSlotConflict
	CodeSameDayDuplicate
	CodeActiveServiceDuplicate
	CodeSequenceExhausted
	CodeOutsideSchedule
	CodeUnavailable
)

var codeNames = map[ErrorCode]string{
	CodeNotFound:               "not_found",
	CodeBadRequest:             "bad_request",
	CodeUnauthorized:           "unauthorized",
	CodeForbidden:              "forbidden",
	CodeInternal:               "internal",
	CodeConflict:               "conflict",
	CodeSlotConflict:           "slot_conflict",
	CodeSameDayDuplicate:       "same_day_duplicate",
	CodeActiveServiceDuplicate: "active_service_duplicate",
	CodeSequenceExhausted:      "sequence_exhausted",
	CodeOutsideSchedule:        "outside_schedule",
	CodeUnavailable:            "unavailable",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error_%d", int(c))
}

// HTTPStatus maps a code onto the status the API responds with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeOutsideSchedule:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeSlotConflict, CodeSameDayDuplicate, CodeActiveServiceDuplicate:
		return http.StatusConflict
	case CodeSequenceExhausted:
		return http.StatusUnprocessableEntity
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Booking rejections. None of these are retried automatically.
var (
	ErrSlotConflict           = &AppError{Code: CodeSlotConflict, Message: "slot is already booked"}
	ErrSameDayDuplicate       = &AppError{Code: CodeSameDayDuplicate, Message: "beneficiary already has an appointment for this service on this date"}
	ErrActiveServiceDuplicate = &AppError{Code: CodeActiveServiceDuplicate, Message: "beneficiary already has an active appointment for this service"}
	ErrSequenceExhausted      = &AppError{Code: CodeSequenceExhausted, Message: "appointment sequence exhausted for branch and year"}
	ErrOutsideSchedule        = &AppError{Code: CodeOutsideSchedule, Message: "requested time is not a bookable slot"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Message: "service temporarily unavailable",
		Err:     err,
	}
}

// Wrap attaches a cause to a sentinel rejection while keeping its code.
func Wrap(sentinel *AppError, err error) *AppError {
	return &AppError{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
