package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Running migrate again must not fail.
	if err := s.(*sqliteStore).migrate(); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestSampleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	values := []float64{5.0, 5.2, 4.8}
	for i, v := range values {
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := s.InsertSample(ctx, "workload_metrics", "error_rate_pct", ts, v); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}

	samples, err := s.FetchSamples(ctx, "workload_metrics", "error_rate_pct", base)
	if err != nil {
		t.Fatalf("FetchSamples failed: %v", err)
	}

	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}

	// Ascending by timestamp.
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			t.Error("samples not ordered by timestamp ascending")
		}
	}

	if samples[0].Value != 5.0 {
		t.Errorf("expected first value 5.0, got %f", samples[0].Value)
	}

	// The since filter excludes earlier rows.
	samples, err = s.FetchSamples(ctx, "workload_metrics", "error_rate_pct", base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("FetchSamples failed: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 sample after filter, got %d", len(samples))
	}
}

func TestFetchSamplesSkipsOtherColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := s.InsertSample(ctx, "workload_metrics", "cpu_utilization_pct", ts, 60.0); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}

	// The CPU row has NULL in the error rate column and must not appear.
	samples, err := s.FetchSamples(ctx, "workload_metrics", "error_rate_pct", ts.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchSamples failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no error rate samples, got %d", len(samples))
	}
}

func TestFetchSamplesMissingColumn(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchSamples(context.Background(), "workload_metrics", "nonexistent_col", time.Now())
	if err == nil {
		t.Fatal("expected error for missing column")
	}
	if !faults.IsDataSource(err) {
		t.Errorf("expected data source error, got %T", err)
	}
	// The driver's own diagnostic survives untouched.
	if !strings.Contains(err.Error(), "nonexistent_col") {
		t.Errorf("expected column name in error, got %q", err.Error())
	}
}

func TestFetchSamplesMissingTable(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchSamples(context.Background(), "no_such_table", "error_rate_pct", time.Now())
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !faults.IsDataSource(err) {
		t.Errorf("expected data source error, got %T", err)
	}
}

func TestFetchSamplesRejectsBadIdentifier(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchSamples(context.Background(), "workload_metrics", "x; DROP TABLE baselines", time.Now())
	if !faults.IsValidation(err) {
		t.Errorf("expected validation error for malformed identifier, got %v", err)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Baseline{
		BaselineID:        "baseline-error_rate-20260801-120000",
		MetricName:        "error_rate",
		Mean:              5.0,
		StdDev:            1.2,
		MinValue:          2.1,
		MaxValue:          9.8,
		P50:               4.9,
		P95:               7.5,
		P99:               9.1,
		SampleCount:       720,
		LookbackDays:      30,
		CalculatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		CalculationMethod: models.MethodSimpleStats,
		DataSource:        "workload_metrics.error_rate_pct",
	}
	if err := s.SaveBaseline(ctx, first); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}

	second := *first
	second.BaselineID = "baseline-error_rate-20260802-120000"
	second.Mean = 5.1
	second.CalculatedAt = first.CalculatedAt.Add(24 * time.Hour)
	if err := s.SaveBaseline(ctx, &second); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}

	latest, err := s.LatestBaseline(ctx, "error_rate")
	if err != nil {
		t.Fatalf("LatestBaseline failed: %v", err)
	}
	if latest == nil {
		t.Fatal("expected a baseline")
	}
	if latest.BaselineID != second.BaselineID {
		t.Errorf("expected newest baseline, got %s", latest.BaselineID)
	}
	if latest.Mean != 5.1 || latest.SampleCount != 720 {
		t.Errorf("baseline fields not preserved: %+v", latest)
	}
	if latest.CalculationMethod != models.MethodSimpleStats {
		t.Errorf("calculation method not preserved: %s", latest.CalculationMethod)
	}

	// Both rows survive: baselines are append-only.
	all, err := s.ListBaselines(ctx, "error_rate", 10)
	if err != nil {
		t.Fatalf("ListBaselines failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 baselines, got %d", len(all))
	}
}

func TestLatestBaselineMissing(t *testing.T) {
	s := newTestStore(t)

	b, err := s.LatestBaseline(context.Background(), "never_calculated")
	if err != nil {
		t.Fatalf("LatestBaseline failed: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil baseline, got %+v", b)
	}
}

func testAnalysis(id string) *models.AnomalyAnalysis {
	return &models.AnomalyAnalysis{
		AnalysisID: id,
		Anomaly: models.Anomaly{
			AnomalyID:      "anomaly-1",
			DetectedAt:     time.Date(2026, 8, 10, 14, 30, 0, 0, time.UTC),
			MetricName:     "error_rate",
			MetricType:     "stability",
			CurrentValue:   45.0,
			BaselineValue:  5.0,
			DeviationSigma: 33.3,
			AnomalyType:    models.AnomalyStability,
			Severity:       models.SeverityCritical,
			Confidence:     0.95,
		},
		RootCause: models.RootCause{
			PrimaryCause: "Elevated failure rate following workload change",
			Confidence:   0.75,
			Evidence:     []string{"error_rate at 45.0 vs baseline 5.0"},
		},
		Recommendations: []models.Recommendation{
			{Priority: models.SeverityCritical, Action: "Review recent deployments"},
		},
		AnalyzedAt:         time.Date(2026, 8, 10, 14, 31, 0, 0, time.UTC),
		AnalysisDurationMS: 420,
		ModelUsed:          "rule-based-fallback",
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testAnalysis("analysis-1")
	if err := s.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	got, err := s.GetAnalysis(ctx, "analysis-1")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected analysis")
	}

	if got.Anomaly.MetricName != "error_rate" || got.Anomaly.CurrentValue != 45.0 {
		t.Errorf("anomaly not preserved: %+v", got.Anomaly)
	}
	if got.RootCause.Confidence != 0.75 {
		t.Errorf("root cause not preserved: %+v", got.RootCause)
	}
	if len(got.Recommendations) != 1 {
		t.Errorf("recommendations not preserved: %+v", got.Recommendations)
	}
	if got.Feedback.IsFalsePositive != nil {
		t.Error("expected unreviewed analysis")
	}
	if got.Notified {
		t.Error("expected unnotified analysis")
	}
}

func TestGetAnalysisMissing(t *testing.T) {
	s := newTestStore(t)

	a, err := s.GetAnalysis(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if a != nil {
		t.Errorf("expected nil, got %+v", a)
	}
}

func TestUpdateFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAnalysis(ctx, testAnalysis("analysis-1")); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	isFP := true
	reviewedAt := time.Date(2026, 8, 11, 9, 0, 0, 0, time.UTC)
	fb := &models.Feedback{
		IsFalsePositive:  &isFP,
		ReviewedBy:       "oncall-analyst",
		ReviewedAt:       &reviewedAt,
		ReviewNotes:      "expected spike during load test",
		FeedbackCategory: "expected_behavior",
	}

	if err := s.UpdateFeedback(ctx, "analysis-1", fb); err != nil {
		t.Fatalf("UpdateFeedback failed: %v", err)
	}

	got, err := s.GetAnalysis(ctx, "analysis-1")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got.Feedback.IsFalsePositive == nil || !*got.Feedback.IsFalsePositive {
		t.Error("false positive flag not preserved")
	}
	if got.Feedback.ReviewedBy != "oncall-analyst" {
		t.Errorf("reviewer not preserved: %q", got.Feedback.ReviewedBy)
	}
	if got.Feedback.ReviewedAt == nil {
		t.Error("reviewed_at not preserved")
	}
}

func TestUpdateFeedbackMissingAnalysis(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateFeedback(context.Background(), "missing", &models.Feedback{ReviewedBy: "x"})
	if !faults.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNotificationFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveAnalysis(ctx, testAnalysis("analysis-1")); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if err := s.SaveAnalysis(ctx, testAnalysis("analysis-2")); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	pending, err := s.UnnotifiedAnalyses(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedAnalyses failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	if err := s.MarkNotified(ctx, "analysis-1"); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}

	pending, err = s.UnnotifiedAnalyses(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedAnalyses failed: %v", err)
	}
	if len(pending) != 1 || pending[0].AnalysisID != "analysis-2" {
		t.Errorf("unexpected pending set: %+v", pending)
	}
}

func TestReliability(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		if err := s.SaveAnalysis(ctx, testAnalysis(id)); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}
	}

	isTrue, isFalse := true, false
	now := time.Now().UTC()
	if err := s.UpdateFeedback(ctx, "a1", &models.Feedback{IsFalsePositive: &isTrue, ReviewedBy: "r", ReviewedAt: &now}); err != nil {
		t.Fatalf("UpdateFeedback failed: %v", err)
	}
	if err := s.UpdateFeedback(ctx, "a2", &models.Feedback{IsFalsePositive: &isFalse, ReviewedBy: "r", ReviewedAt: &now}); err != nil {
		t.Fatalf("UpdateFeedback failed: %v", err)
	}

	rep, err := s.Reliability(ctx)
	if err != nil {
		t.Fatalf("Reliability failed: %v", err)
	}

	if rep.TotalAnalyses != 4 {
		t.Errorf("expected 4 total, got %d", rep.TotalAnalyses)
	}
	if rep.Reviewed != 2 {
		t.Errorf("expected 2 reviewed, got %d", rep.Reviewed)
	}
	if rep.FalsePositives != 1 {
		t.Errorf("expected 1 false positive, got %d", rep.FalsePositives)
	}
	if rep.FalsePositiveRate != 0.5 {
		t.Errorf("expected rate 0.5, got %f", rep.FalsePositiveRate)
	}
}

func TestReliabilityEmpty(t *testing.T) {
	s := newTestStore(t)

	rep, err := s.Reliability(context.Background())
	if err != nil {
		t.Fatalf("Reliability failed: %v", err)
	}
	if rep.FalsePositiveRate != 0 {
		t.Errorf("expected zero rate with no reviews, got %f", rep.FalsePositiveRate)
	}
}

func TestMigrationEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	events := []*models.MigrationEvent{
		{
			MigrationID:        "mig-1",
			MigrationType:      "user_onboarding",
			MigrationTimestamp: base,
			UserCountChange:    500,
			ResourceRequirements: map[string]float64{
				"cpu_cores": 4, "memory_gb": 16,
			},
			Description: "Onboarded enterprise tenant",
			Status:      "completed",
		},
		{
			MigrationID:        "mig-2",
			MigrationType:      "feature_rollout",
			MigrationTimestamp: base.Add(-48 * time.Hour),
			Status:             "completed",
		},
	}
	for _, m := range events {
		if err := s.SaveMigration(ctx, m); err != nil {
			t.Fatalf("SaveMigration failed: %v", err)
		}
	}

	// Only mig-1 falls inside the window.
	got, err := s.MigrationsBetween(ctx, base.Add(-24*time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("MigrationsBetween failed: %v", err)
	}
	if len(got) != 1 || got[0].MigrationID != "mig-1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].UserCountChange != 500 {
		t.Errorf("user count change not preserved: %d", got[0].UserCountChange)
	}
	if got[0].ResourceRequirements["memory_gb"] != 16 {
		t.Errorf("resource requirements not preserved: %+v", got[0].ResourceRequirements)
	}

	// Upsert on migration_id keeps a single row.
	events[0].Status = "rolled_back"
	if err := s.SaveMigration(ctx, events[0]); err != nil {
		t.Fatalf("SaveMigration upsert failed: %v", err)
	}
	got, err = s.MigrationsBetween(ctx, base.Add(-24*time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("MigrationsBetween failed: %v", err)
	}
	if len(got) != 1 || got[0].Status != "rolled_back" {
		t.Errorf("upsert did not replace row: %+v", got)
	}
}

func TestQueryMetricsRecorded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	errsBefore := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("fetch_samples"))

	if err := s.InsertSample(ctx, "workload_metrics", "error_rate_pct", time.Now().UTC(), 5.0); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}
	if _, err := s.FetchSamples(ctx, "workload_metrics", "error_rate_pct", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("FetchSamples failed: %v", err)
	}

	// Successful queries observe duration without counting a failure.
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("fetch_samples")); got != errsBefore {
		t.Errorf("failure counter moved on success: %f -> %f", errsBefore, got)
	}
	if testutil.CollectAndCount(metrics.StoreQueryDuration) == 0 {
		t.Error("expected query durations to be observed")
	}

	// A failing query increments the failure counter for its operation.
	if _, err := s.FetchSamples(ctx, "workload_metrics", "missing_col", time.Now().Add(-time.Hour)); err == nil {
		t.Fatal("expected error for missing column")
	}
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("fetch_samples")); got != errsBefore+1 {
		t.Errorf("expected failure counter to increment once, got %f -> %f", errsBefore, got)
	}
}
