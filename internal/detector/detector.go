package detector

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
)

// Package detector decides whether a metric observation deviates enough from
// its baseline to count as an anomaly.
//
// Responsibilities:
//   - Compute sigma deviation of an observation against a baseline
//   - Classify severity from the deviation magnitude
//   - Assign detection confidence
//   - Tag the anomaly type from the metric identity
//
// Detection is pure computation: no I/O, no clock reads beyond the
// observation's own timestamp. That keeps it trivially testable and lets
// callers batch it over many metrics.

// Observation is a single metric reading under scrutiny.
type Observation struct {
	MetricName        string                    `json:"metric_name"`
	MetricType        string                    `json:"metric_type"`
	Value             float64                   `json:"value"`
	Timestamp         time.Time                 `json:"timestamp"`
	AffectedResources []models.AffectedResource `json:"affected_resources,omitempty"`
	RelatedMetrics    map[string]float64        `json:"related_metrics,omitempty"`
	TimeWindow        *models.TimeWindow        `json:"time_window,omitempty"`
}

// Detector evaluates observations against baselines.
type Detector struct {
	thresholdSigma float64
}

// New creates a detector with the given sigma threshold.
func New(thresholdSigma float64) *Detector {
	return &Detector{thresholdSigma: thresholdSigma}
}

// Detect evaluates one observation against its baseline. The second return
// value reports whether the deviation crossed the threshold; when it is false
// the anomaly is nil.
func (d *Detector) Detect(obs Observation, baseline *models.Baseline) (*models.Anomaly, bool) {
	sigma := SigmaDeviation(obs.Value, baseline.Mean, baseline.StdDev)

	if math.Abs(sigma) < d.thresholdSigma {
		return nil, false
	}

	severity := SeverityForSigma(sigma)

	anomaly := &models.Anomaly{
		AnomalyID:           uuid.NewString(),
		DetectedAt:          obs.Timestamp,
		MetricName:          obs.MetricName,
		MetricType:          obs.MetricType,
		CurrentValue:        obs.Value,
		BaselineValue:       baseline.Mean,
		DeviationSigma:      sigma,
		DeviationPercentage: deviationPercentage(obs.Value, baseline.Mean),
		AnomalyType:         TypeForMetric(obs.MetricName),
		Severity:            severity,
		Confidence:          ConfidenceForSigma(sigma),
		AffectedResources:   obs.AffectedResources,
		RelatedMetrics:      obs.RelatedMetrics,
		TimeWindow:          obs.TimeWindow,
		DetectionMethod:     "statistical_threshold",
	}
	if anomaly.DetectedAt.IsZero() {
		anomaly.DetectedAt = time.Now().UTC()
	}

	metrics.AnomaliesDetected.WithLabelValues(obs.MetricName, string(severity)).Inc()

	return anomaly, true
}

// DetectBatch evaluates many observations against their baselines. Entries
// whose metric has no baseline are skipped.
func (d *Detector) DetectBatch(observations []Observation, baselines map[string]*models.Baseline) []*models.Anomaly {
	var anomalies []*models.Anomaly
	for _, obs := range observations {
		b, ok := baselines[obs.MetricName]
		if !ok || b == nil {
			continue
		}
		if a, found := d.Detect(obs, b); found {
			anomalies = append(anomalies, a)
		}
	}
	return anomalies
}

// SigmaDeviation computes how many standard deviations value sits from mean.
// A zero standard deviation means any departure from the mean is infinitely
// unusual: the result is signed infinity, and exactly-at-mean is zero.
func SigmaDeviation(value, mean, stdDev float64) float64 {
	if stdDev == 0 {
		switch {
		case value > mean:
			return math.Inf(1)
		case value < mean:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return (value - mean) / stdDev
}

// SeverityForSigma maps absolute deviation to severity.
func SeverityForSigma(sigma float64) models.Severity {
	abs := math.Abs(sigma)
	switch {
	case abs >= 4.0:
		return models.SeverityCritical
	case abs >= 3.5:
		return models.SeverityHigh
	case abs >= 2.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ConfidenceForSigma maps absolute deviation to detection confidence.
// Larger departures are less likely to be noise.
func ConfidenceForSigma(sigma float64) float64 {
	abs := math.Abs(sigma)
	switch {
	case abs > 4.0:
		return 0.95
	case abs > 3.5:
		return 0.90
	case abs > 3.0:
		return 0.85
	default:
		return 0.75
	}
}

// TypeForMetric tags the anomaly category from the metric identity.
func TypeForMetric(metricName string) models.AnomalyType {
	switch metricName {
	case "error_rate":
		return models.AnomalyStability
	case "execution_time":
		return models.AnomalyPerformance
	case "cpu_utilization", "memory_consumption":
		return models.AnomalyResource
	case "cost", "slot_usage":
		return models.AnomalyCost
	default:
		return models.AnomalyUnknown
	}
}

func deviationPercentage(value, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}
