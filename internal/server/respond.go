package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

// apiError is the standard error body for non-anomaly endpoints.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeFault maps the error taxonomy to HTTP. The data source diagnostic
// reaches the client unmodified.
func writeFault(w http.ResponseWriter, err error) {
	switch {
	case faults.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, apiError{
			Error:   "bad request",
			Message: err.Error(),
			Type:    "ValidationError",
		})
	case faults.IsDataSource(err):
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   "data source failure",
			Message: err.Error(),
			Type:    "DataSourceError",
		})
	case faults.IsPersistence(err):
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   "persistence failure",
			Message: err.Error(),
			Type:    "PersistenceFailure",
		})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{
			Error:   "internal error",
			Message: err.Error(),
			Type:    "InternalError",
		})
	}
}

// queryLimit reads a bounded ?limit= parameter with a default.
func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// statusRecorder captures the response code for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observeMiddleware records request counts and latency per route template.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
