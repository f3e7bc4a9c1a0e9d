package analyzer

import (
	"context"

	"github.com/driftwatch/driftwatch/internal/models"
)

// Package analyzer produces root-cause analyses for detected anomalies.
//
// Responsibilities:
//   - Gather analysis context: the latest baseline for the metric and any
//     workload migrations inside the correlation window
//   - Run AI root-cause analysis with a hard timeout and bounded retry
//   - Guarantee a result via deterministic rule-based analysis whenever the
//     AI path fails, times out, returns unparsable output, or is unconfigured
//   - Apply the low-confidence policy when the AI answer is below threshold
//   - Generate prioritized, actionable recommendations
//   - Produce a plain-language summary for non-technical audiences
//   - Persist the completed analysis for downstream consumers
//
// The rule-based path is pure: identical anomaly input produces identical
// root cause and recommendations, byte for byte. Analysis never fails just
// because the LLM did; the only errors crossing this boundary are context
// cancellation and persistence failures.

// Analyzer turns one anomaly into a persisted analysis.
type Analyzer interface {
	// Analyze runs the full pipeline for one anomaly and persists the result.
	Analyze(ctx context.Context, anomaly *models.Anomaly) (*models.AnomalyAnalysis, error)
}
