// Package models - API request and response types.
//
// The captcha endpoints keep the exact JSON shapes of the public contract:
// - generate returns {"image"} and, in test mode, {"testMode": "true", "captchaText"}
// - verify returns {"valid", "message"} and, in test mode, {"testMode": true,
//   "userInput", "expectedCaptcha"} where the last two may be null
// - a rate-limited generate returns {"error"} with HTTP 429
//
// Diagnostic fields live in embedded pointer structs so that they are absent
// from normal responses yet serialized with explicit nulls in test mode.
package models

import (
	"time"
)

// Fixed human-readable messages of the captcha protocol.
const (
	MessageVerified      = "CAPTCHA verified successfully!"
	MessageInvalid       = "Invalid CAPTCHA text. Please try again."
	MessageRateLimited   = "Too many requests. Please try again later after 1 minute."
	TestModeHeader       = "X-Captcha-Test-Mode"
	SessionAttributeText = "captchaText"
)

// GenerateResponse is returned by GET /api/captcha/generate.
type GenerateResponse struct {
	Image string `json:"image"` // standard base64 PNG, no data: prefix
	*GenerateDiagnostics
}

// GenerateDiagnostics leaks the expected answer. Only set in test mode.
type GenerateDiagnostics struct {
	TestMode    string `json:"testMode"` // the literal string "true"
	CaptchaText string `json:"captchaText"`
}

// VerifyResponse is returned by POST /api/captcha/verify.
type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	*VerifyDiagnostics
}

// VerifyDiagnostics echoes the submission and the value that was pending
// before verification cleared it. Only set in test mode.
type VerifyDiagnostics struct {
	TestMode        bool    `json:"testMode"`
	UserInput       *string `json:"userInput"`
	ExpectedCaptcha *string `json:"expectedCaptcha"`
}

// RateLimitResponse is the 429 body of the generate endpoint.
type RateLimitResponse struct {
	Error string `json:"error"`
}

// NewVerifyResponse builds the verification result with its fixed message.
func NewVerifyResponse(valid bool) *VerifyResponse {
	msg := MessageInvalid
	if valid {
		msg = MessageVerified
	}
	return &VerifyResponse{Valid: valid, Message: msg}
}

// ErrorResponse provides structured error information for failures that are
// not part of the captcha protocol itself (bad JSON, internal faults).
type ErrorResponse struct {
	Error     string    `json:"error"`                // Error type (always "error")
	Message   string    `json:"message"`              // Human-readable error description
	Code      string    `json:"code,omitempty"`       // Machine-readable error code
	Timestamp time.Time `json:"timestamp"`            // Error occurrence time
	RequestID string    `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Unknown route
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"  // 405: Wrong HTTP method
	ErrorCodeRateLimited        = "RATE_LIMITED"        // 429: Admission denied
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Dependency down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

// AddComponent records a component's health. An unhealthy component degrades
// the overall status.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
