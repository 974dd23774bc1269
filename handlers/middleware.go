package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"twok/auth"
	"twok/models"
	"twok/utils"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	UserKey ContextKey = "user"
)

// NewStructuredLogger logs one line per request through slog.
func NewStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"remote_ip", utils.GetIPAddress(r),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// NewSecurityHeadersMiddleware sets response headers that stop browsers from
// sniffing or framing API responses.
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// NewCORSMiddleware opens the API to any origin and answers preflight requests.
func NewCORSMiddleware() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}

// UserMiddleware resolves an optional bearer token. A missing or invalid
// token leaves the request anonymous; routes that need a user add
// RequireUser on top.
func UserMiddleware(app App) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := utils.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := app.Auth().ResolveToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					app.Logger().Error("Failed to resolve token", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func currentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(UserKey).(*models.User)
	return user
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(app App) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if currentUser(r) == nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondDetail(w, http.StatusUnauthorized, "Not authenticated", app)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(app App) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireUser(app)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.IsAdmin(currentUser(r).Role) {
				app.Logger().Warn("Non-admin attempted admin action", "user", currentUser(r).Username, "path", r.URL.Path)
				respondDetail(w, http.StatusForbidden, "Not authorized", app)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
