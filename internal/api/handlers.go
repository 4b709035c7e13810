package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"captcha/internal/captcha"
	"captcha/internal/models"
	"captcha/internal/ratelimit"
	"captcha/internal/session"
	"captcha/internal/version"

	"golang.org/x/time/rate"
)

// maxVerifyBody bounds the verify request body; a six character answer fits
// many times over.
const maxVerifyBody = 4 << 10

// Handlers contains HTTP handlers for the captcha API
type Handlers struct {
	service  captcha.ServiceInterface
	store    session.Store
	limiter  ratelimit.Limiter
	testMode bool
	version  version.Info

	// denials can arrive in floods; log the first and then one per interval.
	denialLog *rate.Sometimes

	// docsPage is the Swagger UI bound to the route serving the document.
	docsPage []byte
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithSessionStore lets the health check ping the session backend.
func WithSessionStore(s session.Store) HandlerOption {
	return func(h *Handlers) { h.store = s }
}

// WithLimiter lets the health check report remaining tokens.
func WithLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handlers) { h.limiter = l }
}

// WithTestMode controls whether the X-Captcha-Test-Mode header is honoured.
func WithTestMode(enabled bool) HandlerOption {
	return func(h *Handlers) { h.testMode = enabled }
}

// WithVersion sets the build information reported by the health check.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance. Test mode is honoured unless
// disabled with WithTestMode(false).
func NewHandlers(service captcha.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service:   service,
		testMode:  true,
		denialLog: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.setSpecURL(apiPrefix + "/openapi.yaml")
	return h
}

func (h *Handlers) isTestMode(r *http.Request) bool {
	return h.testMode && models.IsTestMode(r.Header.Get(models.TestModeHeader))
}

// GenerateCaptcha issues a new challenge for the caller's session
// GET /api/captcha/generate
func (h *Handlers) GenerateCaptcha(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Generate(r.Context(), SessionID(r.Context()), h.isTestMode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ratelimit.WriteHeaders(w.Header(), res.RateLimit, true)
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, res.Response)
}

// VerifyCaptcha checks a submitted answer against the session's pending one
// POST /api/captcha/verify
func (h *Handlers) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody)).Decode(&req); err != nil {
		h.writeServiceError(w, r, captcha.NewInvalidRequestError("Invalid JSON in request body", err))
		return
	}

	resp, err := h.service.Verify(r.Context(), SessionID(r.Context()), req.Captcha, h.isTestMode(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck reports service, session store and bucket status
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	if up := h.version.Uptime(); up > 0 {
		response.Uptime = up.String()
	}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			slog.Warn("Session store health check failed", "error", err)
			response.AddComponent("session_store", models.StatusUnhealthy, "Session store is unreachable")
		} else {
			response.AddComponent("session_store", models.StatusHealthy, "Session store is operational")
		}
	}

	if h.limiter != nil {
		if info, err := h.limiter.Peek(r.Context()); err != nil {
			slog.Warn("Rate limiter health check failed", "error", err)
			response.AddComponent("rate_limiter", models.StatusUnhealthy, "Rate limiter is unreachable")
		} else {
			response.AddComponent("rate_limiter", models.StatusHealthy, "Rate limiter is operational")
			response.AddMetric("tokens_remaining", info.Remaining)
			response.AddMetric("tokens_capacity", info.Limit)
			response.AddMetric("next_refill", info.ResetAt.UTC())
		}
	}

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	status := http.StatusOK
	if response.Status != models.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}

// writeServiceError maps a service error onto its HTTP response. Admission
// denials use the fixed protocol body; everything else the ErrorResponse.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *captcha.ServiceError
	if !errors.As(err, &svcErr) {
		slog.Error("Unhandled service error", "error", err, "path", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if svcErr.RateLimit != nil {
		info := *svcErr.RateLimit
		ratelimit.WriteHeaders(w.Header(), info, false)
		h.denialLog.Do(func() {
			slog.Warn("Captcha generation rate limited",
				"limit", info.Limit,
				"retry_after", ratelimit.RetryAfterSeconds(info),
				"remote_addr", r.RemoteAddr)
		})
		writeJSONResponse(w, svcErr.StatusCode, models.RateLimitResponse{Error: svcErr.Message})
		return
	}

	if svcErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Captcha request failed", "error", err, "path", r.URL.Path, "request_id", RequestID(r.Context()))
		// Internal details stay in the log.
		writeError(w, r, svcErr.StatusCode, svcErr.Code, "Internal server error")
		return
	}
	writeError(w, r, svcErr.StatusCode, svcErr.Code, svcErr.Message)
}

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing else can be written.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeError writes the standard ErrorResponse tagged with the request ID.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	errorResp := models.NewErrorResponse(message, code)
	errorResp.RequestID = RequestID(r.Context())
	writeJSONResponse(w, statusCode, errorResp)
}
