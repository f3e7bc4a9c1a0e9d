package correlation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

// Package correlation links anomalies to workload migration events.
//
// Responsibilities:
//   - Find migration events inside the lookback window before an anomaly
//   - Classify each by recency: a migration shortly before the anomaly is a
//     likely cause, an older one inside the window a possible contributor
//   - Turn migration attributes (user count change, resource requirements,
//     description) into human-readable impact factors for the analysis
//
// Classification boundary: a migration exactly at the likely-cause bound
// counts as a possible contributor, not a likely cause.

// Classification labels for a correlated migration.
const (
	ClassLikelyCause         = "likely_cause"
	ClassPossibleContributor = "possible_contributor"
)

// CorrelatedMigration pairs a migration event with its distance from the
// anomaly.
type CorrelatedMigration struct {
	Event          *models.MigrationEvent `json:"event"`
	TimeDiffHours  float64                `json:"time_diff_hours"`
	Classification string                 `json:"classification"`
}

// MigrationAnalysis is the correlator's verdict for one anomaly.
type MigrationAnalysis struct {
	LikelyCause       bool                  `json:"likely_cause"`
	RelatedMigrations []CorrelatedMigration `json:"related_migrations"`
	ImpactSummary     string                `json:"impact_summary"`
	ImpactFactors     []string              `json:"impact_factors"`
}

// Correlator finds and classifies migrations near an anomaly.
type Correlator struct {
	store             store.MigrationStore
	migrationWindow   time.Duration
	likelyCauseWindow time.Duration
}

// New creates a correlator. migrationWindowHours bounds how far back to look;
// likelyCauseWindowHours bounds the likely-cause classification.
func New(st store.MigrationStore, migrationWindowHours, likelyCauseWindowHours int) *Correlator {
	return &Correlator{
		store:             st,
		migrationWindow:   time.Duration(migrationWindowHours) * time.Hour,
		likelyCauseWindow: time.Duration(likelyCauseWindowHours) * time.Hour,
	}
}

// FindCorrelated returns migrations inside the window before the anomaly,
// ordered by timestamp ascending, each classified by recency.
func (c *Correlator) FindCorrelated(ctx context.Context, anomalyTime time.Time) ([]CorrelatedMigration, error) {
	events, err := c.store.MigrationsBetween(ctx, anomalyTime.Add(-c.migrationWindow), anomalyTime)
	if err != nil {
		return nil, err
	}

	out := make([]CorrelatedMigration, 0, len(events))
	for _, ev := range events {
		diff := anomalyTime.Sub(ev.MigrationTimestamp)
		if diff < 0 {
			continue
		}
		out = append(out, CorrelatedMigration{
			Event:          ev,
			TimeDiffHours:  diff.Hours(),
			Classification: c.classify(diff),
		})
	}
	return out, nil
}

// classify maps distance to a classification. The likely-cause bound is
// exclusive: exactly at the bound is a possible contributor.
func (c *Correlator) classify(diff time.Duration) string {
	if diff < c.likelyCauseWindow {
		return ClassLikelyCause
	}
	return ClassPossibleContributor
}

// AnalyzeImpact builds the migration verdict for an anomaly from its
// correlated migrations.
func (c *Correlator) AnalyzeImpact(anomaly *models.Anomaly, correlated []CorrelatedMigration) *MigrationAnalysis {
	analysis := &MigrationAnalysis{
		RelatedMigrations: correlated,
	}

	if len(correlated) == 0 {
		analysis.ImpactSummary = "No workload migrations found in the correlation window."
		return analysis
	}

	for _, cm := range correlated {
		if cm.Classification == ClassLikelyCause {
			analysis.LikelyCause = true
		}
		analysis.ImpactFactors = append(analysis.ImpactFactors, impactFactors(cm)...)
	}

	if analysis.LikelyCause {
		analysis.ImpactSummary = fmt.Sprintf(
			"%d migration(s) in the correlation window; at least one within %.0f hours of the anomaly is a likely cause.",
			len(correlated), c.likelyCauseWindow.Hours())
	} else {
		analysis.ImpactSummary = fmt.Sprintf(
			"%d migration(s) in the correlation window; all are possible contributors rather than likely causes.",
			len(correlated))
	}

	return analysis
}

// impactFactors translates one migration's attributes into evidence lines.
func impactFactors(cm CorrelatedMigration) []string {
	ev := cm.Event
	var factors []string

	if ev.UserCountChange > 0 {
		factors = append(factors, fmt.Sprintf(
			"Migration %s added %d users %.1f hours before the anomaly, increasing load on the workload",
			ev.MigrationID, ev.UserCountChange, cm.TimeDiffHours))
	} else if ev.UserCountChange < 0 {
		factors = append(factors, fmt.Sprintf(
			"Migration %s removed %d users %.1f hours before the anomaly",
			ev.MigrationID, -ev.UserCountChange, cm.TimeDiffHours))
	}

	// Sorted keys keep the factor list deterministic for identical inputs.
	resources := make([]string, 0, len(ev.ResourceRequirements))
	for resource := range ev.ResourceRequirements {
		resources = append(resources, resource)
	}
	sort.Strings(resources)
	for _, resource := range resources {
		factors = append(factors, fmt.Sprintf(
			"Migration %s changed resource requirement %s by %.1f",
			ev.MigrationID, resource, ev.ResourceRequirements[resource]))
	}

	if ev.Description != "" {
		factors = append(factors, fmt.Sprintf(
			"Migration %s (%s): %s", ev.MigrationID, ev.MigrationType, ev.Description))
	}

	return factors
}
