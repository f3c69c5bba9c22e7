package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests tags each request with an X-Request-ID and logs its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		line := "%s %s -> %d (%s, request %s)"
		args := []any{r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond), requestID}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Errorf(line, args...)
		} else {
			s.logger.Infof(line, args...)
		}
	})
}
