package captcha

import (
	"fmt"
	"net/http"

	"captcha/internal/models"
	"captcha/internal/ratelimit"
)

// ServiceError represents errors from the captcha service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error

	// RateLimit is set when admission was denied.
	RateLimit *ratelimit.Info
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewRateLimitedError reports that the shared bucket had no token left.
func NewRateLimitedError(info ratelimit.Info) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRateLimited,
		Message:    models.MessageRateLimited,
		StatusCode: http.StatusTooManyRequests,
		RateLimit:  &info,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
