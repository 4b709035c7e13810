package api

import (
	"context"
	"net/http"

	"captcha/internal/models"

	"github.com/google/uuid"
)

type sessionContextKey struct{}

// SessionID returns the session bound to the request by the session
// middleware, or "" outside of it.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionContextKey{}).(string)
	return id
}

// WithSessionID stores id in ctx as the request's session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, id)
}

// sessionMiddleware binds every request to a session. A missing cookie, or
// one that is not a UUID issued by this service, is replaced with a fresh
// UUIDv4 cookie. The cookie has no Max-Age; the server-side TTL governs
// expiry.
func sessionMiddleware(cfg models.SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					id = parsed.String()
				}
			}

			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.CookieSecure || r.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}
