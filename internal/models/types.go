package models

import "time"

// Package models defines the core data types used throughout driftwatch.
//
// These types are the contracts between the baseline engine, the anomaly
// detector, the root-cause analyzer and the persistence layer. Baseline and
// Anomaly records are immutable once created; recalculation or re-detection
// always produces a new record.

// CalculationMethod identifies the statistical strategy used to compute a
// baseline.
type CalculationMethod string

const (
	MethodSimpleStats           CalculationMethod = "simple_stats"
	MethodRollingAverage        CalculationMethod = "rolling_average"
	MethodSeasonalDecomposition CalculationMethod = "seasonal_decomposition"
)

// Valid reports whether m is a known calculation method.
func (m CalculationMethod) Valid() bool {
	switch m {
	case MethodSimpleStats, MethodRollingAverage, MethodSeasonalDecomposition:
		return true
	}
	return false
}

// AnomalyType classifies what kind of problem an anomaly represents.
type AnomalyType string

const (
	AnomalyStability   AnomalyType = "stability"
	AnomalyPerformance AnomalyType = "performance"
	AnomalyCost        AnomalyType = "cost"
	AnomalyResource    AnomalyType = "resource"
	AnomalyUnknown     AnomalyType = "unknown"
)

// Valid reports whether t is a known anomaly type.
func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyStability, AnomalyPerformance, AnomalyCost, AnomalyResource, AnomalyUnknown:
		return true
	}
	return false
}

// Severity is the ordinal severity of an anomaly or recommendation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank orders severities so that a larger rank means more severe.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of s (critical > high > medium > low > info).
// Unknown severities rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Baseline is the learned statistical summary of "normal" values for one
// metric over a historical lookback window. A new calculation run always
// appends a new Baseline row; superseded rows remain queryable.
type Baseline struct {
	BaselineID        string            `json:"baseline_id"`
	MetricName        string            `json:"metric_name"`
	Mean              float64           `json:"mean"`
	StdDev            float64           `json:"std_dev"`
	MinValue          float64           `json:"min_value"`
	MaxValue          float64           `json:"max_value"`
	P50               float64           `json:"p50"`
	P95               float64           `json:"p95"`
	P99               float64           `json:"p99"`
	SampleCount       int64             `json:"sample_count"`
	LookbackDays      int               `json:"lookback_days"`
	CalculatedAt      time.Time         `json:"calculated_at"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
	DataSource        string            `json:"data_source"`
	Notes             string            `json:"notes,omitempty"`
}

// AffectedResource identifies one resource impacted by an anomaly.
type AffectedResource struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ImpactLevel  string `json:"impact_level"`
}

// TimeWindow bounds the period over which an anomaly was observed.
type TimeWindow struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration,omitempty"`
}

// Anomaly is a single detected deviation event. Created by the detector,
// immutable, consumed by the analyzer.
type Anomaly struct {
	AnomalyID           string             `json:"anomaly_id"`
	DetectedAt          time.Time          `json:"detected_at"`
	MetricName          string             `json:"metric_name"`
	MetricType          string             `json:"metric_type"`
	CurrentValue        float64            `json:"current_value"`
	BaselineValue       float64            `json:"baseline_value"`
	DeviationSigma      float64            `json:"deviation_sigma"`
	DeviationPercentage float64            `json:"deviation_percentage"`
	AnomalyType         AnomalyType        `json:"anomaly_type"`
	Severity            Severity           `json:"severity"`
	Confidence          float64            `json:"confidence"`
	AffectedResources   []AffectedResource `json:"affected_resources,omitempty"`
	RelatedMetrics      map[string]float64 `json:"related_metrics,omitempty"`
	TimeWindow          *TimeWindow        `json:"time_window,omitempty"`
	DetectionMethod     string             `json:"detection_method,omitempty"`
	HistoricalContext   string             `json:"historical_context,omitempty"`
}

// RootCause is the analyzer's structured explanation of why an anomaly
// occurred. Confidence reflects the analysis path that actually produced
// the result (AI vs rule-based).
type RootCause struct {
	PrimaryCause        string                 `json:"primary_cause"`
	ContributingFactors []string               `json:"contributing_factors"`
	Confidence          float64                `json:"confidence"`
	Evidence            []string               `json:"evidence"`
	CorrelationData     map[string]interface{} `json:"correlation_data,omitempty"`
}

// Recommendation is one actionable suggestion tied to a root cause.
type Recommendation struct {
	Priority            Severity `json:"priority"`
	Action              string   `json:"action"`
	Rationale           string   `json:"rationale"`
	ExpectedImpact      string   `json:"expected_impact"`
	ImplementationSteps []string `json:"implementation_steps,omitempty"`
	EstimatedEffort     string   `json:"estimated_effort,omitempty"`
	RiskLevel           string   `json:"risk_level,omitempty"`
	CostImpact          string   `json:"cost_impact,omitempty"`
}

// Summary holds the plain-language projection of an analysis for
// non-technical audiences. These fields are derived from the structured
// RootCause and Recommendations, never the source of truth.
type Summary struct {
	WhatHappened                  string `json:"what_happened"`
	WhyItHappened                 string `json:"why_it_happened"`
	WhatIsTheImpact               string `json:"what_is_the_impact"`
	WhatImprovementsCanBeMade     string `json:"what_improvements_can_be_made"`
	EstimatedBenefitIfImplemented string `json:"estimated_benefit_if_implemented"`
}

// Feedback carries the reviewer verdict on a persisted analysis. All fields
// are nullable until an external reviewer records a verdict; the core never
// populates them itself.
type Feedback struct {
	IsFalsePositive  *bool      `json:"is_false_positive"`
	ReviewedBy       string     `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes      string     `json:"review_notes,omitempty"`
	FeedbackCategory string     `json:"feedback_category,omitempty"`
}

// AnomalyAnalysis is the aggregate record produced once per anomaly and
// persisted for downstream consumers (the notification system polls rows
// where Notified is false).
type AnomalyAnalysis struct {
	AnalysisID         string           `json:"analysis_id"`
	Anomaly            Anomaly          `json:"anomaly"`
	RootCause          RootCause        `json:"root_cause"`
	Recommendations    []Recommendation `json:"recommendations"`
	AnalyzedAt         time.Time        `json:"analyzed_at"`
	AnalysisDurationMS int64            `json:"analysis_duration_ms"`
	ModelUsed          string           `json:"model_used"`
	PredictedImpact    string           `json:"predicted_impact,omitempty"`
	Summary            *Summary         `json:"summary,omitempty"`
	Feedback           Feedback         `json:"feedback"`
	Notified           bool             `json:"notified"`
}

// MigrationEvent is a recorded system change (user onboarding, deployment,
// configuration change) used as a correlation signal. Read-only to this
// service.
type MigrationEvent struct {
	MigrationID          string             `json:"migration_id"`
	MigrationType        string             `json:"migration_type"`
	MigrationTimestamp   time.Time          `json:"migration_timestamp"`
	UserCountChange      int                `json:"user_count_change"`
	ResourceRequirements map[string]float64 `json:"resource_requirements,omitempty"`
	Description          string             `json:"description,omitempty"`
	Status               string             `json:"status"`
}
