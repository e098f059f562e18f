package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/logging"
)

// bearerToken returns the token part of "Bearer <token>", or "".
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// JWTAuthMiddleware rejects requests without a valid bearer token and puts
// the caller's identity on the request context.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.fail(w, r, "session", "Error verifying token", common.ErrAuthenticationRequired)
			return
		}

		id, err := h.tokens.Verify(token)
		if err != nil {
			h.logger.Warn(r.Context(), "token verification failed", "error", err)
			h.fail(w, r, "session", "Error verifying token", common.ErrInvalidToken)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// OptionalJWTMiddleware attaches the identity when a valid bearer token is
// sent. Requests without one, or with a stale or malformed one, continue as
// anonymous; routes that need an identity reject them further down.
func (h *APIHandler) OptionalJWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := h.tokens.Verify(token)
		if err != nil {
			h.logger.Debug(r.Context(), "ignoring invalid optional token", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
}

func redactHeader(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// RequestLogger logs one line per request with its status and latency. The
// request id is attached to the context so handler logs carry it too.
func RequestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			r = r.WithContext(logging.ContextWith(r.Context(), "request_id", middleware.GetReqID(r.Context())))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			}
			if v := redactHeader("Authorization", r.Header.Get("Authorization")); v != "" {
				args = append(args, "authorization", v)
			}
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error(r.Context(), "request", args...)
			case status >= http.StatusBadRequest:
				logger.Warn(r.Context(), "request", args...)
			default:
				logger.Info(r.Context(), "request", args...)
			}
		})
	}
}
