package correlation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

func newTestCorrelator(t *testing.T) (*Correlator, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 24, 6), st
}

func saveMigration(t *testing.T, st store.Store, id string, ts time.Time, userChange int) {
	t.Helper()
	err := st.SaveMigration(context.Background(), &models.MigrationEvent{
		MigrationID:        id,
		MigrationType:      "user_onboarding",
		MigrationTimestamp: ts,
		UserCountChange:    userChange,
		Status:             "completed",
	})
	if err != nil {
		t.Fatalf("SaveMigration failed: %v", err)
	}
}

func TestFindCorrelatedWindowAndOrder(t *testing.T) {
	c, st := newTestCorrelator(t)
	anomalyTime := time.Date(2026, 8, 10, 14, 0, 0, 0, time.UTC)

	saveMigration(t, st, "mig-recent", anomalyTime.Add(-2*time.Hour), 500)
	saveMigration(t, st, "mig-older", anomalyTime.Add(-20*time.Hour), 0)
	saveMigration(t, st, "mig-outside", anomalyTime.Add(-30*time.Hour), 0)
	saveMigration(t, st, "mig-future", anomalyTime.Add(2*time.Hour), 0)

	got, err := c.FindCorrelated(context.Background(), anomalyTime)
	if err != nil {
		t.Fatalf("FindCorrelated failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 migrations in window, got %d", len(got))
	}

	// Ascending by timestamp: the older one first.
	if got[0].Event.MigrationID != "mig-older" || got[1].Event.MigrationID != "mig-recent" {
		t.Errorf("unexpected order: %s, %s", got[0].Event.MigrationID, got[1].Event.MigrationID)
	}

	if got[1].TimeDiffHours != 2.0 {
		t.Errorf("expected 2.0 hour diff, got %f", got[1].TimeDiffHours)
	}
	if got[1].Classification != ClassLikelyCause {
		t.Errorf("migration 2h before anomaly must be likely cause, got %s", got[1].Classification)
	}
	if got[0].Classification != ClassPossibleContributor {
		t.Errorf("migration 20h before anomaly must be possible contributor, got %s", got[0].Classification)
	}
}

func TestClassifyBoundary(t *testing.T) {
	c, _ := newTestCorrelator(t)

	tests := []struct {
		diff time.Duration
		want string
	}{
		{5*time.Hour + 59*time.Minute, ClassLikelyCause},
		{6 * time.Hour, ClassPossibleContributor}, // exactly at the bound
		{6*time.Hour + time.Minute, ClassPossibleContributor},
		{23 * time.Hour, ClassPossibleContributor},
	}

	for _, tt := range tests {
		if got := c.classify(tt.diff); got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.diff, got, tt.want)
		}
	}
}

func TestAnalyzeImpactNoMigrations(t *testing.T) {
	c, _ := newTestCorrelator(t)

	analysis := c.AnalyzeImpact(&models.Anomaly{MetricName: "error_rate"}, nil)

	if analysis.LikelyCause {
		t.Error("no migrations cannot be a likely cause")
	}
	if analysis.ImpactSummary == "" {
		t.Error("expected a summary even with no migrations")
	}
	if len(analysis.ImpactFactors) != 0 {
		t.Errorf("expected no factors, got %v", analysis.ImpactFactors)
	}
}

func TestAnalyzeImpactLikelyCauseWithUserGrowth(t *testing.T) {
	c, _ := newTestCorrelator(t)

	correlated := []CorrelatedMigration{
		{
			Event: &models.MigrationEvent{
				MigrationID:     "mig-1",
				MigrationType:   "user_onboarding",
				UserCountChange: 500,
				Description:     "Onboarded enterprise tenant",
			},
			TimeDiffHours:  2.0,
			Classification: ClassLikelyCause,
		},
	}

	analysis := c.AnalyzeImpact(&models.Anomaly{MetricName: "error_rate"}, correlated)

	if !analysis.LikelyCause {
		t.Error("expected likely cause verdict")
	}

	foundUserFactor := false
	for _, f := range analysis.ImpactFactors {
		if strings.Contains(f, "added 500 users") {
			foundUserFactor = true
		}
	}
	if !foundUserFactor {
		t.Errorf("expected user count factor, got %v", analysis.ImpactFactors)
	}
}

func TestAnalyzeImpactDeterministicFactors(t *testing.T) {
	c, _ := newTestCorrelator(t)

	correlated := []CorrelatedMigration{
		{
			Event: &models.MigrationEvent{
				MigrationID: "mig-1",
				ResourceRequirements: map[string]float64{
					"memory_gb": 16, "cpu_cores": 4, "disk_gb": 100,
				},
			},
			TimeDiffHours:  3.0,
			Classification: ClassLikelyCause,
		},
	}

	first := c.AnalyzeImpact(&models.Anomaly{}, correlated)
	for i := 0; i < 10; i++ {
		again := c.AnalyzeImpact(&models.Anomaly{}, correlated)
		if len(again.ImpactFactors) != len(first.ImpactFactors) {
			t.Fatal("factor count changed between runs")
		}
		for j := range first.ImpactFactors {
			if again.ImpactFactors[j] != first.ImpactFactors[j] {
				t.Fatalf("factor order changed between runs: %v vs %v", first.ImpactFactors, again.ImpactFactors)
			}
		}
	}
}
