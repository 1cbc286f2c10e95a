// Package services provides the business logic layer between handlers and the
// registry, bus and workers. Services validate requests, enforce the admin rules
// and publish commands; handlers only translate HTTP.
package services

import "errors"

// Error codes returned by the admin services
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsCode reports whether err is, or wraps, a ServiceError with the given code
func IsCode(err error, code string) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}

func notFound(shardID string) *ServiceError {
	return NewServiceErrorWithDetails(ErrCodeNotFound, "Shard not found", map[string]interface{}{
		"shard_id": shardID,
	})
}

func invalidRequest(message string) *ServiceError {
	return NewServiceError(ErrCodeInvalidRequest, message)
}
