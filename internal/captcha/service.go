// Package captcha implements the generate/verify protocol: a challenge is
// issued only when the shared token bucket admits it, its answer is held in
// the caller's session, and a verification consumes that answer.
package captcha

import (
	"context"
	"log/slog"

	"captcha/internal/models"
	"captcha/internal/ratelimit"
	"captcha/internal/session"
)

// Service handles captcha generation and verification
type Service struct {
	limiter   ratelimit.Limiter
	generator Generator
	store     session.Store
}

// NewService creates a captcha service. The limiter is shared by every
// caller of Generate; verification is never limited.
func NewService(limiter ratelimit.Limiter, generator Generator, store session.Store) *Service {
	return &Service{
		limiter:   limiter,
		generator: generator,
		store:     store,
	}
}

// Generate issues a challenge. A denied request mutates no session state.
func (s *Service) Generate(ctx context.Context, sessionID string, testMode bool) (*GenerateResult, error) {
	allowed, info, err := s.limiter.TryConsume(ctx, 1)
	if err != nil {
		return nil, NewInternalError("failed to check rate limit", err)
	}
	if !allowed {
		return nil, NewRateLimitedError(info)
	}

	c, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, NewInternalError("failed to generate captcha", err)
	}

	if err := s.store.Set(ctx, sessionID, models.SessionAttributeText, c.Text); err != nil {
		return nil, NewInternalError("failed to store captcha", err)
	}

	slog.DebugContext(ctx, "Captcha generated", "session_id", sessionID, "captcha_text", c.Text, "remaining", info.Remaining)

	resp := &models.GenerateResponse{Image: c.EncodedImage()}
	if testMode {
		resp.GenerateDiagnostics = &models.GenerateDiagnostics{
			TestMode:    "true",
			CaptchaText: c.Text,
		}
	}
	return &GenerateResult{Response: resp, RateLimit: info}, nil
}

// Verify compares submitted with the pending answer. The answer is cleared
// before the comparison result is returned so it can be tried only once. A
// nil submission or a missing answer never verifies.
func (s *Service) Verify(ctx context.Context, sessionID string, submitted *string, testMode bool) (*models.VerifyResponse, error) {
	expected, ok, err := s.store.Get(ctx, sessionID, models.SessionAttributeText)
	if err != nil {
		return nil, NewInternalError("failed to read captcha", err)
	}

	if err := s.store.Delete(ctx, sessionID, models.SessionAttributeText); err != nil {
		return nil, NewInternalError("failed to clear captcha", err)
	}

	valid := ok && submitted != nil && *submitted == expected

	slog.DebugContext(ctx, "Captcha verified", "session_id", sessionID, "valid", valid, "pending", ok)

	resp := models.NewVerifyResponse(valid)
	if testMode {
		diag := &models.VerifyDiagnostics{TestMode: true, UserInput: submitted}
		if ok {
			diag.ExpectedCaptcha = &expected
		}
		resp.VerifyDiagnostics = diag
	}
	return resp, nil
}
