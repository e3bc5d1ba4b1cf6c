package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"fwdctl/pkg/logging"
)

// LoggerMiddleware tags each request with an id and logs its outcome.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		start := time.Now()

		defer func() {
			if err := recover(); err != nil {
				logging.Error("API", nil, "Recovered from panic in %s %s (req %s): %v\n%s", r.Method, r.URL.Path, reqID, err, debug.Stack())
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		cost := time.Since(start)

		switch {
		case rw.statusCode >= 500:
			logging.Warn("API", "%s %s -> %d in %s (req %s)", r.Method, r.URL.Path, rw.statusCode, cost, reqID)
		case rw.statusCode >= 400:
			logging.Info("API", "%s %s -> %d in %s (req %s)", r.Method, r.URL.Path, rw.statusCode, cost, reqID)
		default:
			logging.Debug("API", "%s %s -> %d in %s (req %s)", r.Method, r.URL.Path, rw.statusCode, cost, reqID)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
