package httpapp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ctxKey int

const callerKey ctxKey = iota

// withIdentity resolves the bearer credential on every request and
// stashes the optional caller id in the context. A missing or invalid
// token is anonymous, not an error; handlers that need an identity
// check for one themselves.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if id := s.auth.Resolve(bearer); id != nil {
			r = r.WithContext(context.WithValue(r.Context(), callerKey, *id))
		}
		next.ServeHTTP(w, r)
	})
}

// callerID returns the resolved user id, nil for anonymous callers.
func callerID(r *http.Request) *int64 {
	if id, ok := r.Context().Value(callerKey).(int64); ok {
		return &id
	}
	return nil
}

func withLogging(logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Infow("request",
			"method", r.Method,
			"url", r.URL.Path,
			"remote", r.RemoteAddr,
			"took", time.Since(start),
		)
	})
}

func withRecover(logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorw("panic recovered", "err", rec, "url", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
