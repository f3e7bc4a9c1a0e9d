package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
)

// requiredAnomalyFields is the inbound contract for analyze requests. Every
// field must be present; enum and range checks run on top.
var requiredAnomalyFields = []string{
	"anomaly_id",
	"detected_at",
	"metric_name",
	"metric_type",
	"current_value",
	"baseline_value",
	"deviation_sigma",
	"deviation_percentage",
	"anomaly_type",
	"severity",
	"confidence",
}

// anomalyValidationError is the 400 body for rejected analyze requests.
type anomalyValidationError struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Details   struct {
		MissingFields []string `json:"missing_fields"`
		InvalidFields []string `json:"invalid_fields"`
	} `json:"details"`
}

func (s *Server) handleAnalyzeAnomaly(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeFault(w, faults.NewValidation("body", "failed to read request body: %v", err))
		return
	}

	anomaly, missing, invalid := decodeAnomaly(body)
	if len(missing) > 0 || len(invalid) > 0 {
		resp := anomalyValidationError{
			Status:    "error",
			ErrorCode: "INVALID_ANOMALY_DATA",
			Message:   "anomaly payload failed validation",
		}
		resp.Details.MissingFields = missing
		resp.Details.InvalidFields = invalid
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), anomaly)
	if err != nil {
		s.logger.Error("anomaly analysis failed",
			zap.String("anomaly_id", anomaly.AnomalyID), zap.Error(err))
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// decodeAnomaly validates field presence and shape. Missing and invalid
// fields are reported separately so callers can fix their payload in one
// round trip.
func decodeAnomaly(body []byte) (*models.Anomaly, []string, []string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, requiredAnomalyFields, nil
	}

	var missing []string
	for _, field := range requiredAnomalyFields {
		if v, ok := raw[field]; !ok || string(v) == "null" {
			missing = append(missing, field)
		}
	}

	var anomaly models.Anomaly
	var invalid []string
	if err := json.Unmarshal(body, &anomaly); err != nil {
		// Pinpoint the fields that failed to decode.
		invalid = invalidAnomalyFields(raw)
	}

	present := func(field string) bool {
		v, ok := raw[field]
		return ok && string(v) != "null"
	}
	if present("anomaly_type") && !anomaly.AnomalyType.Valid() {
		invalid = appendUnique(invalid, "anomaly_type")
	}
	if present("severity") && !anomaly.Severity.Valid() {
		invalid = appendUnique(invalid, "severity")
	}
	if present("confidence") && (anomaly.Confidence < 0 || anomaly.Confidence > 1) {
		invalid = appendUnique(invalid, "confidence")
	}
	if present("detected_at") && anomaly.DetectedAt.IsZero() {
		invalid = appendUnique(invalid, "detected_at")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return nil, missing, invalid
	}
	return &anomaly, nil, nil
}

// invalidAnomalyFields finds fields whose JSON shape does not decode into the
// anomaly contract.
func invalidAnomalyFields(raw map[string]json.RawMessage) []string {
	var invalid []string
	probe := map[string]interface{}{
		"anomaly_id":           new(string),
		"detected_at":          new(time.Time),
		"metric_name":          new(string),
		"metric_type":          new(string),
		"current_value":        new(float64),
		"baseline_value":       new(float64),
		"deviation_sigma":      new(float64),
		"deviation_percentage": new(float64),
		"anomaly_type":         new(string),
		"severity":             new(string),
		"confidence":           new(float64),
	}
	for _, field := range requiredAnomalyFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, probe[field]); err != nil {
			invalid = append(invalid, field)
		}
	}
	return invalid
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 200)

	list, err := s.store.ListAnalyses(r.Context(), limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": list,
		"count":    len(list),
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	a, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeFault(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, apiError{
			Error:   "not found",
			Message: "no analysis with ID " + id,
			Type:    "NotFound",
		})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// feedbackRequest records an analyst verdict on one analysis.
type feedbackRequest struct {
	IsFalsePositive  *bool  `json:"is_false_positive"`
	ReviewedBy       string `json:"reviewed_by"`
	ReviewNotes      string `json:"review_notes,omitempty"`
	FeedbackCategory string `json:"feedback_category,omitempty"`
}

func (s *Server) handleUpdateFeedback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFault(w, faults.NewValidation("body", "invalid JSON: %v", err))
		return
	}
	if req.IsFalsePositive == nil {
		writeFault(w, faults.NewValidation("is_false_positive", "is_false_positive is required"))
		return
	}
	if req.ReviewedBy == "" {
		writeFault(w, faults.NewValidation("reviewed_by", "reviewed_by is required"))
		return
	}

	now := time.Now().UTC()
	fb := &models.Feedback{
		IsFalsePositive:  req.IsFalsePositive,
		ReviewedBy:       req.ReviewedBy,
		ReviewedAt:       &now,
		ReviewNotes:      req.ReviewNotes,
		FeedbackCategory: req.FeedbackCategory,
	}

	if err := s.store.UpdateFeedback(r.Context(), id, fb); err != nil {
		if faults.IsValidation(err) {
			writeJSON(w, http.StatusNotFound, apiError{
				Error:   "not found",
				Message: err.Error(),
				Type:    "NotFound",
			})
			return
		}
		writeFault(w, err)
		return
	}

	verdict := "confirmed"
	if *req.IsFalsePositive {
		verdict = "false_positive"
	}
	metrics.FeedbackRecorded.WithLabelValues(verdict).Inc()
	if s.auditor != nil {
		_ = s.auditor.LogFeedbackRecorded(r.Context(), id, req.ReviewedBy, *req.IsFalsePositive)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"analysis_id": id,
	})
}

func (s *Server) handleReliability(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.Reliability(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
