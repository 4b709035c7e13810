package captcha

import (
	"context"

	"captcha/internal/challenge"
	"captcha/internal/models"
	"captcha/internal/ratelimit"
)

// ServiceInterface defines the captcha protocol operations
type ServiceInterface interface {
	// Generate admits the request against the shared bucket, creates a new
	// challenge and makes it the session's pending answer.
	Generate(ctx context.Context, sessionID string, testMode bool) (*GenerateResult, error)

	// Verify checks a submission against the session's pending answer and
	// clears it, whatever the outcome.
	Verify(ctx context.Context, sessionID string, submitted *string, testMode bool) (*models.VerifyResponse, error)
}

// Generator produces challenges.
type Generator interface {
	Generate(ctx context.Context) (*challenge.Challenge, error)
}

// GenerateResult is a successful generation with the bucket state after
// admission.
type GenerateResult struct {
	Response  *models.GenerateResponse
	RateLimit ratelimit.Info
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

var _ Generator = (*challenge.Generator)(nil)
