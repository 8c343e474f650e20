package services

import "errors"

// ServiceError is a domain failure with a stable code. Two ServiceErrors
// match under errors.Is when their codes are equal.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

const (
	CodeNotFound               = "NOT_FOUND"
	CodeForbidden              = "FORBIDDEN"
	CodeInvalidState           = "INVALID_STATE"
	CodePreconditionFailed     = "PRECONDITION_FAILED"
	CodeEditWindowClosed       = "EDIT_WINDOW_CLOSED"
	CodeInvalidFulfillmentType = "INVALID_FULFILLMENT_TYPE"
	CodeNoSchedulesAvailable   = "NO_SCHEDULES_AVAILABLE"
	CodeValidation             = "VALIDATION_ERROR"
)

var (
	ErrNotFound               = &ServiceError{Code: CodeNotFound, Message: "resource not found"}
	ErrForbidden              = &ServiceError{Code: CodeForbidden, Message: "you do not have access to this resource"}
	ErrInvalidState           = &ServiceError{Code: CodeInvalidState, Message: "operation not allowed in the current state"}
	ErrPreconditionFailed     = &ServiceError{Code: CodePreconditionFailed, Message: "precondition failed"}
	ErrEditWindowClosed       = &ServiceError{Code: CodeEditWindowClosed, Message: "order can no longer be modified"}
	ErrInvalidFulfillmentType = &ServiceError{Code: CodeInvalidFulfillmentType, Message: "invalid fulfillment type"}
	ErrNoSchedulesAvailable   = &ServiceError{Code: CodeNoSchedulesAvailable, Message: "no fulfillment schedules available"}
	ErrValidation             = &ServiceError{Code: CodeValidation, Message: "invalid request"}
)

func newError(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// CodeOf returns the ServiceError code in err's chain, or "" if there is none
func CodeOf(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
