package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/models"
)

// calculateBaselineRequest triggers a baseline calculation. Column and table
// fall back to the configured metric stream when omitted; lookback_days and
// calculation_method fall back to the configured defaults.
type calculateBaselineRequest struct {
	MetricName        string `json:"metric_name"`
	MetricColumn      string `json:"metric_column,omitempty"`
	SourceTable       string `json:"source_table,omitempty"`
	LookbackDays      int    `json:"lookback_days,omitempty"`
	CalculationMethod string `json:"calculation_method,omitempty"`
}

// calculateBaselineResponse is the 200 projection: the persisted baseline
// row plus an explicit success flag.
type calculateBaselineResponse struct {
	Success bool `json:"success"`
	*models.Baseline
}

func (s *Server) handleCalculateBaseline(w http.ResponseWriter, r *http.Request) {
	var req calculateBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, faults.NewValidation("body", "invalid JSON: %v", err))
		return
	}
	if req.MetricName == "" {
		writeFault(w, faults.NewValidation("metric_name", "metric_name is required"))
		return
	}
	if req.LookbackDays < 0 {
		writeFault(w, faults.NewValidation("lookback_days", "lookback_days must be positive"))
		return
	}

	spec, _ := s.metricSpec(req.MetricName)
	spec.Name = req.MetricName
	if req.MetricColumn != "" {
		spec.Column = req.MetricColumn
	}
	if req.SourceTable != "" {
		spec.Table = req.SourceTable
	}
	if spec.Column == "" || spec.Table == "" {
		writeFault(w, faults.NewValidation("metric_name",
			"metric %s is not configured; provide metric_column and source_table", req.MetricName))
		return
	}

	method := models.CalculationMethod(req.CalculationMethod)
	if req.CalculationMethod != "" && !method.Valid() {
		writeFault(w, faults.NewValidation("calculation_method", "unknown calculation method %s", req.CalculationMethod))
		return
	}

	b, err := s.engine.Calculate(r.Context(), spec, method, req.LookbackDays)
	if err != nil {
		s.logger.Warn("baseline calculation failed",
			zap.String("metric", req.MetricName), zap.Error(err))
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calculateBaselineResponse{Success: true, Baseline: b})
}

func (s *Server) handleLatestBaseline(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]

	b, err := s.store.LatestBaseline(r.Context(), metric)
	if err != nil {
		writeFault(w, err)
		return
	}
	if b == nil {
		writeJSON(w, http.StatusNotFound, apiError{
			Error:   "not found",
			Message: "no baseline exists for metric " + metric,
			Type:    "NotFound",
		})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListBaselines(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	limit := queryLimit(r, 20, 200)

	list, err := s.store.ListBaselines(r.Context(), metric, limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metric_name": metric,
		"baselines":   list,
		"count":       len(list),
	})
}

// metricSpec looks up a configured metric stream by name.
func (s *Server) metricSpec(name string) (config.MetricSpec, bool) {
	for _, spec := range s.cfg.Baseline.Metrics {
		if spec.Name == name {
			return spec, true
		}
	}
	return config.MetricSpec{}, false
}
