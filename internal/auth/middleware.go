package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/textsql/textsql/internal/observability"
)

// Middleware requires a bearer token on every request and stores the
// caller's Identity in the request context.
func Middleware(logger *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, r, "Not authenticated")
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if logger != nil {
					level := slog.LevelWarn
					if !errors.Is(err, ErrUnauthorized) {
						level = slog.LevelError
					}
					logger.Log(r.Context(), level, "authentication failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				writeUnauthorized(w, r, "Could not validate credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), IdentityFor(user))))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"detail":     message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
