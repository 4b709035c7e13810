package api

import (
	"net/http"

	"captcha/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// apiPrefix is the path every captcha endpoint lives under.
const apiPrefix = "/api/captcha"

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != apiPrefix+"/health" &&
					r.URL.Path != "/metrics" &&
					r.URL.Path != apiPrefix+"/openapi.yaml" &&
					r.URL.Path != apiPrefix+"/docs"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(requestIDMiddleware)
	for _, opt := range opts {
		opt(router)
	}

	api := router.PathPrefix(apiPrefix).Subrouter()

	// Only the challenge endpoints carry session state.
	withSession := sessionMiddleware(config.Session)
	api.Handle("/generate", withSession(http.HandlerFunc(handlers.GenerateCaptcha))).Methods("GET")
	api.Handle("/verify", withSession(http.HandlerFunc(handlers.VerifyCaptcha))).Methods("POST")
	api.HandleFunc("/generate", preflightHandler).Methods("OPTIONS")
	api.HandleFunc("/verify", preflightHandler).Methods("OPTIONS")

	specRoute := api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods("GET")
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	if specURL, err := specRoute.URLPath(); err == nil {
		handlers.setSpecURL(specURL.Path)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	// The subrouter answers wrong-method requests on its own paths.
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}
