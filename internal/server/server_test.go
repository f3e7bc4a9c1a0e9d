package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftwatch/driftwatch/internal/analyzer"
	"github.com/driftwatch/driftwatch/internal/baseline"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/llm/adapter"
	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

func newTestServer(t *testing.T) (*mux.Router, store.Store, *config.Config) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	cfg.Database.SQLitePath = ":memory:"

	llm, err := adapter.New(&adapter.Config{Provider: adapter.ProviderNone})
	if err != nil {
		t.Fatalf("adapter.New failed: %v", err)
	}

	eng := baseline.NewEngine(cfg, st, nil, nil)
	an := analyzer.NewAnalyzer(cfg, st, llm, nil, nil)

	srv, err := New(cfg, st, eng, an, nil, nil)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	return srv.Router(), st, cfg
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func seedSamples(t *testing.T, st store.Store, column string, hours int, value float64) {
	t.Helper()
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	for i := 0; i < hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		if err := st.InsertSample(ctx, "workload_metrics", column, ts, value); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}
}

func validAnomalyPayload() map[string]interface{} {
	return map[string]interface{}{
		"anomaly_id":           "anomaly-http-1",
		"detected_at":          time.Now().UTC().Format(time.RFC3339),
		"metric_name":          "error_rate",
		"metric_type":          "rate",
		"current_value":        45.0,
		"baseline_value":       5.0,
		"deviation_sigma":      33.33,
		"deviation_percentage": 800.0,
		"anomaly_type":         "stability",
		"severity":             "critical",
		"confidence":           0.95,
	}
}

// ─── Health ───────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

// ─── Baseline endpoints ───────────────────────────────────────────────────────

func TestCalculateBaselineEndpoint(t *testing.T) {
	router, st, _ := newTestServer(t)
	seedSamples(t, st, "error_rate_pct", 72, 5.0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]string{"metric_name": "error_rate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success           bool    `json:"success"`
		BaselineID        string  `json:"baseline_id"`
		MetricName        string  `json:"metric_name"`
		Mean              float64 `json:"mean"`
		StdDev            float64 `json:"std_dev"`
		SampleCount       int64   `json:"sample_count"`
		LookbackDays      int     `json:"lookback_days"`
		CalculationMethod string  `json:"calculation_method"`
		CalculatedAt      string  `json:"calculated_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success true in the response body")
	}
	if !strings.HasPrefix(resp.BaselineID, "baseline-error_rate-") {
		t.Errorf("unexpected baseline ID %q", resp.BaselineID)
	}
	if resp.SampleCount != 72 {
		t.Errorf("expected 72 samples, got %d", resp.SampleCount)
	}
	if resp.CalculatedAt == "" {
		t.Error("expected calculated_at in the response body")
	}
}

func TestCalculateBaselineHonorsRequestMethodAndLookback(t *testing.T) {
	router, st, _ := newTestServer(t)
	seedSamples(t, st, "error_rate_pct", 72, 5.0)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]interface{}{
			"metric_name":        "error_rate",
			"calculation_method": "rolling_average",
			"lookback_days":      7,
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success           bool   `json:"success"`
		CalculationMethod string `json:"calculation_method"`
		LookbackDays      int    `json:"lookback_days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CalculationMethod != "rolling_average" {
		t.Errorf("requested method lost, got %q", resp.CalculationMethod)
	}
	if resp.LookbackDays != 7 {
		t.Errorf("requested lookback lost, got %d", resp.LookbackDays)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]interface{}{"metric_name": "error_rate", "calculation_method": "fourier"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown calculation_method, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]interface{}{"metric_name": "error_rate", "lookback_days": -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative lookback_days, got %d", rec.Code)
	}
}

func TestCalculateBaselineAdHocSource(t *testing.T) {
	router, st, _ := newTestServer(t)
	seedSamples(t, st, "error_rate_pct", 48, 5.0)

	// A metric absent from config works when the request names its source.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]interface{}{
			"metric_name":   "queue_depth",
			"metric_column": "error_rate_pct",
			"source_table":  "workload_metrics",
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success    bool   `json:"success"`
		BaselineID string `json:"baseline_id"`
		DataSource string `json:"data_source"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success true")
	}
	if !strings.HasPrefix(resp.BaselineID, "baseline-queue_depth-") {
		t.Errorf("unexpected baseline ID %q", resp.BaselineID)
	}
	if resp.DataSource != "workload_metrics.error_rate_pct" {
		t.Errorf("unexpected data source %q", resp.DataSource)
	}
}

func TestCalculateBaselineUnknownMetric(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]string{"metric_name": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "ValidationError" {
		t.Errorf("expected ValidationError, got %q", resp.Type)
	}
}

func TestCalculateBaselineEmptyResultSet(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]string{"metric_name": "error_rate"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty result set, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "error_rate") {
		t.Errorf("error must name the metric: %s", rec.Body.String())
	}
}

func TestCalculateBaselineDataSourceError(t *testing.T) {
	router, _, cfg := newTestServer(t)
	cfg.Baseline.Metrics = append(cfg.Baseline.Metrics, config.MetricSpec{
		Name: "broken", Column: "missing_col", Table: "workload_metrics", Enabled: true,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]string{"metric_name": "broken"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "DataSourceError" {
		t.Errorf("expected DataSourceError, got %q", resp.Type)
	}
	// Driver diagnostic must survive to the client.
	if !strings.Contains(resp.Message, "missing_col") {
		t.Errorf("driver diagnostic lost: %q", resp.Message)
	}
}

func TestLatestBaselineEndpoint(t *testing.T) {
	router, st, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/baselines/error_rate/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any calculation, got %d", rec.Code)
	}

	seedSamples(t, st, "error_rate_pct", 48, 5.0)
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/baselines/calculate",
		map[string]string{"metric_name": "error_rate"}); rec.Code != http.StatusOK {
		t.Fatalf("calculate failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/baselines/error_rate/latest", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var b models.Baseline
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if b.MetricName != "error_rate" {
		t.Errorf("unexpected metric %q", b.MetricName)
	}
}

// ─── Anomaly analysis endpoints ───────────────────────────────────────────────

func TestAnalyzeAnomalyEndpoint(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/anomalies/analyze", validAnomalyPayload())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var analysis models.AnomalyAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if analysis.AnalysisID == "" {
		t.Error("expected an analysis ID")
	}
	if analysis.RootCause.Confidence != 0.75 {
		t.Errorf("expected rule-based confidence, got %f", analysis.RootCause.Confidence)
	}
	if len(analysis.Recommendations) == 0 {
		t.Error("expected recommendations")
	}
}

func TestAnalyzeAnomalyMissingFields(t *testing.T) {
	router, _, _ := newTestServer(t)

	payload := validAnomalyPayload()
	delete(payload, "severity")
	delete(payload, "confidence")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/anomalies/analyze", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp anomalyValidationError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" || resp.ErrorCode != "INVALID_ANOMALY_DATA" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if len(resp.Details.MissingFields) != 2 {
		t.Errorf("expected 2 missing fields, got %v", resp.Details.MissingFields)
	}
	for _, want := range []string{"severity", "confidence"} {
		found := false
		for _, f := range resp.Details.MissingFields {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing_fields must include %q, got %v", want, resp.Details.MissingFields)
		}
	}
}

func TestAnalyzeAnomalyInvalidFields(t *testing.T) {
	router, _, _ := newTestServer(t)

	payload := validAnomalyPayload()
	payload["severity"] = "apocalyptic"
	payload["confidence"] = 3.0
	payload["current_value"] = "forty-five"

	rec := doJSON(t, router, http.MethodPost, "/api/v1/anomalies/analyze", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp anomalyValidationError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, want := range []string{"severity", "confidence", "current_value"} {
		found := false
		for _, f := range resp.Details.InvalidFields {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Errorf("invalid_fields must include %q, got %v", want, resp.Details.InvalidFields)
		}
	}
}

func TestAnalyzeAnomalyMalformedJSON(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/anomalies/analyze",
		strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListAndGetAnalyses(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/anomalies/analyze", validAnomalyPayload())
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d", rec.Code)
	}
	var analysis models.AnomalyAnalysis
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/analyses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("expected 1 analysis, got %d", list.Count)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+analysis.AnalysisID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/analyses/analysis-nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown analysis, got %d", rec.Code)
	}
}

// ─── Feedback and reliability ─────────────────────────────────────────────────

func TestFeedbackAndReliability(t *testing.T) {
	router, _, _ := newTestServer(t)

	var ids []string
	for i := 0; i < 2; i++ {
		payload := validAnomalyPayload()
		payload["anomaly_id"] = fmt.Sprintf("anomaly-http-%d", i)
		rec := doJSON(t, router, http.MethodPost, "/api/v1/anomalies/analyze", payload)
		if rec.Code != http.StatusOK {
			t.Fatalf("analyze failed: %d", rec.Code)
		}
		var a models.AnomalyAnalysis
		if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
			t.Fatalf("decode: %v", err)
		}
		ids = append(ids, a.AnalysisID)
	}

	rec := doJSON(t, router, http.MethodPut, "/api/v1/analyses/"+ids[0]+"/feedback",
		map[string]interface{}{
			"is_false_positive": true,
			"reviewed_by":       "sre-oncall",
			"review_notes":      "expected during load test",
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/analyses/reliability", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reliability failed: %d", rec.Code)
	}
	var report store.ReliabilityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalAnalyses != 2 || report.Reviewed != 1 || report.FalsePositives != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.FalsePositiveRate != 1.0 {
		t.Errorf("expected rate 1.0 over reviewed analyses, got %f", report.FalsePositiveRate)
	}
}

func TestFeedbackUnknownAnalysis(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/analyses/analysis-nope/feedback",
		map[string]interface{}{"is_false_positive": false, "reviewed_by": "sre"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFeedbackRequiresVerdict(t *testing.T) {
	router, _, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/analyses/analysis-x/feedback",
		map[string]interface{}{"reviewed_by": "sre"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without is_false_positive, got %d", rec.Code)
	}
}
