package baseline

import (
	"context"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/models"
)

// Package baseline computes statistical baselines for configured metrics.
//
// Responsibilities:
//   - Fetch historical observations from the tabular metric source
//   - Compute mean, standard deviation, min/max and p50/p95/p99
//   - Support three calculation methods:
//       simple_stats: flat statistics over the whole lookback window
//       rolling_average: statistics over a smoothed series, damping noise
//       seasonal_decomposition: hour-of-day deseasonalized residual statistics
//   - Persist baselines append-only; recalculation never destroys history
//   - Optionally ask the LLM which calculation method fits the data shape,
//     falling back to a rule-based pick below the confidence threshold
//
// Methods degrade gracefully: rolling_average with too few samples and
// seasonal_decomposition with less than two weeks of data both fall back to
// simple_stats, with the substitution noted on the baseline row.
//
// Error Contract:
//   - Empty result set for a metric: ValidationError naming the metric,
//     nothing persisted
//   - Source query failure (missing table/column): DataSourceError carrying
//     the driver's message verbatim

// Engine calculates and persists metric baselines.
type Engine interface {
	// Calculate computes and persists a baseline for one metric stream.
	// An empty method uses the configured default; lookbackDays <= 0 uses
	// the configured lookback window.
	Calculate(ctx context.Context, spec config.MetricSpec, method models.CalculationMethod, lookbackDays int) (*models.Baseline, error)

	// CalculateAll computes baselines for every enabled metric. One metric
	// failing does not abort the rest; per-metric failures come back keyed
	// by metric name.
	CalculateAll(ctx context.Context) ([]*models.Baseline, map[string]error)

	// Latest returns the most recent baseline for a metric, nil when none.
	Latest(ctx context.Context, metricName string) (*models.Baseline, error)
}
