package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/session"
)

// RequestLogger emits one zap line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			zap.L().Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Authenticate attaches the bearer token's session to the request context.
// Requests without a token continue anonymously; a bad token is rejected.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header", nil)
			return
		}

		s, err := h.Tokens.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
			return
		}

		u, _ := s.User()
		h.Sessions.Publish(session.Change{
			Subject: s.Subject(),
			Event:   session.LoggedIn{User: u, Token: s.Token(), ExpiresAt: s.ExpiresAt()},
			Session: s,
		})
		next.ServeHTTP(w, r.WithContext(session.WithContext(r.Context(), s)))
	})
}

// RequireRole rejects anonymous requests with 401 and other roles with 403.
func RequireRole(roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := session.FromContext(r.Context())
			if !s.Authenticated() {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if s.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", nil)
		})
	}
}
