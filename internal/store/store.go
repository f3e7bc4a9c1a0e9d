package store

import (
	"context"
	"time"

	"github.com/driftwatch/driftwatch/internal/models"
)

// Store is the main persistence interface for the service.
type Store interface {
	SampleStore
	BaselineStore
	AnalysisStore
	MigrationStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Sample store ─────────────────────────────────────────────────────────────

// Sample is a single metric observation from the tabular source.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SampleStore reads raw metric observations from operator-owned tables.
// Table and column names come from configuration, so a misconfigured metric
// surfaces as the driver's own "no such table" / "no such column" diagnostic,
// wrapped but never rewritten.
type SampleStore interface {
	// FetchSamples returns observations for one metric column since the given
	// time, ordered by timestamp ascending. NULL cells are skipped.
	FetchSamples(ctx context.Context, table, column string, since time.Time) ([]Sample, error)

	// InsertSample appends one observation to a metric column.
	InsertSample(ctx context.Context, table, column string, ts time.Time, value float64) error
}

// ─── Baseline store ───────────────────────────────────────────────────────────

// BaselineStore persists calculated baselines. Baselines are append-only:
// recalculation writes a new row and "latest" queries pick the newest.
type BaselineStore interface {
	// SaveBaseline writes a new baseline row.
	SaveBaseline(ctx context.Context, b *models.Baseline) error

	// LatestBaseline returns the most recent baseline for a metric.
	// Returns nil, nil when no baseline exists yet.
	LatestBaseline(ctx context.Context, metricName string) (*models.Baseline, error)

	// ListBaselines returns up to limit baselines for a metric, newest first.
	ListBaselines(ctx context.Context, metricName string, limit int) ([]*models.Baseline, error)
}

// ─── Analysis store ───────────────────────────────────────────────────────────

// ReliabilityReport summarizes analyst feedback across all analyses.
type ReliabilityReport struct {
	TotalAnalyses     int     `json:"total_analyses"`
	Reviewed          int     `json:"reviewed"`
	FalsePositives    int     `json:"false_positives"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// AnalysisStore persists completed anomaly analyses and analyst feedback.
type AnalysisStore interface {
	// SaveAnalysis writes a completed analysis.
	SaveAnalysis(ctx context.Context, a *models.AnomalyAnalysis) error

	// GetAnalysis returns one analysis by ID. Returns nil, nil when missing.
	GetAnalysis(ctx context.Context, analysisID string) (*models.AnomalyAnalysis, error)

	// ListAnalyses returns up to limit analyses, newest first.
	ListAnalyses(ctx context.Context, limit int) ([]*models.AnomalyAnalysis, error)

	// UpdateFeedback records analyst review on an existing analysis.
	UpdateFeedback(ctx context.Context, analysisID string, fb *models.Feedback) error

	// UnnotifiedAnalyses returns analyses not yet picked up by downstream
	// notification consumers, oldest first.
	UnnotifiedAnalyses(ctx context.Context) ([]*models.AnomalyAnalysis, error)

	// MarkNotified flags an analysis as consumed.
	MarkNotified(ctx context.Context, analysisID string) error

	// Reliability aggregates feedback into a false positive rate.
	Reliability(ctx context.Context) (*ReliabilityReport, error)
}

// ─── Migration store ──────────────────────────────────────────────────────────

// MigrationStore persists workload change events used for correlation.
type MigrationStore interface {
	// SaveMigration writes a migration event.
	SaveMigration(ctx context.Context, m *models.MigrationEvent) error

	// MigrationsBetween returns events with timestamps in [start, end],
	// ordered by timestamp ascending.
	MigrationsBetween(ctx context.Context, start, end time.Time) ([]*models.MigrationEvent, error)
}
