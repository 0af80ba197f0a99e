package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

// Logging logs one line per request and stores a request-scoped logger in
// the context. Requests slower than slow are logged at warn.
func Logging(log *logger.Logger, slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLog := log.With("request_id", chimiddleware.GetReqID(r.Context()))
			next.ServeHTTP(ww, r.WithContext(logger.ContextWithLogger(r.Context(), reqLog)))

			elapsed := time.Since(start)
			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			}
			switch {
			case slow > 0 && elapsed > slow:
				reqLog.Warn("slow request", kv...)
			case ww.Status() >= http.StatusInternalServerError:
				reqLog.Error("request failed", kv...)
			default:
				reqLog.Info("request", kv...)
			}
		})
	}
}
