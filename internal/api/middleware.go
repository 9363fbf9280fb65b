package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lox/healthdash/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per route and status and logs slow ones.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		if d := time.Since(started); d > 2*time.Second {
			s.log.Warn("slow request", "route", route, "status", rec.status, "duration", d.Round(time.Millisecond))
		}
	}
}
