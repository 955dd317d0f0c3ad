package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable tag identifying a class of failure at the API boundary
type Kind string

const (
	InvalidSignature             Kind = "InvalidSignature"
	UserNotRegistered            Kind = "UserNotRegistered"
	InsufficientBalance          Kind = "InsufficientBalance"
	InvalidCharacterFile         Kind = "InvalidCharacterFile"
	EmptyFile                    Kind = "EmptyFile"
	DuplicateDeployment          Kind = "DuplicateDeployment"
	InvalidClientJSON            Kind = "InvalidClientJson"
	InvalidClientConfig          Kind = "InvalidClientConfig"
	ClientAuthenticationFailed   Kind = "ClientAuthenticationFailed"
	StorageUploadFailed          Kind = "StorageUploadFailed"
	DeploymentNotificationFailed Kind = "DeploymentNotificationFailed"
	NotOwner                     Kind = "NotOwner"
	AlreadyRunning               Kind = "AlreadyRunning"
	AgentNotFound                Kind = "AgentNotFound"
	AgentLimitReached            Kind = "AgentLimitReached"
	ExternalServiceError         Kind = "ExternalServiceError"
	InvalidRequest               Kind = "InvalidRequest"
	GenerationFailed             Kind = "GenerationFailed"
	Internal                     Kind = "Internal"
)

// Error is the error type returned by every pipeline operation
type Error struct {
	Kind    Kind
	Message string
	// Details are extra fields merged into the JSON error body (e.g. agent_id)
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a field that is returned to the caller alongside the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps the underlying cause
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or Internal when err carries none
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of the given kind
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// StatusCode maps an error kind to the HTTP status returned to callers
func StatusCode(kind Kind) int {
	switch kind {
	case InvalidSignature:
		return http.StatusUnauthorized
	case UserNotRegistered, AgentNotFound:
		return http.StatusNotFound
	case InsufficientBalance, NotOwner:
		return http.StatusForbidden
	case DuplicateDeployment, AlreadyRunning:
		return http.StatusConflict
	case AgentLimitReached:
		return http.StatusTooManyRequests
	case InvalidCharacterFile, EmptyFile, InvalidClientJSON, InvalidClientConfig,
		ClientAuthenticationFailed, InvalidRequest:
		return http.StatusBadRequest
	case GenerationFailed:
		return http.StatusUnprocessableEntity
	case StorageUploadFailed, DeploymentNotificationFailed, ExternalServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
