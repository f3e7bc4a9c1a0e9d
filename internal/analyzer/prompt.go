package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/driftwatch/driftwatch/internal/correlation"
	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/models"
)

const rootCauseSystemPrompt = `You are a cloud workload reliability analyst. You are given one detected
metric anomaly with its baseline context and any recent workload migrations.
Determine the most likely root cause. Be specific, cite the evidence you
used, and if migrations added users or functionality explain how that
increased resource demands. Respond with ONLY a JSON object, no prose.`

// buildRootCausePrompt assembles the user message for AI root-cause analysis.
func buildRootCausePrompt(anomaly *models.Anomaly, baseline *models.Baseline, mig *correlation.MigrationAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Anomaly detected in metric %q (%s):\n", anomaly.MetricName, anomaly.AnomalyType)
	fmt.Fprintf(&b, "- Current value: %.2f\n", anomaly.CurrentValue)
	fmt.Fprintf(&b, "- Baseline value: %.2f\n", anomaly.BaselineValue)
	fmt.Fprintf(&b, "- Deviation: %.2f sigma (%.1f%%)\n", anomaly.DeviationSigma, anomaly.DeviationPercentage)
	fmt.Fprintf(&b, "- Severity: %s, detection confidence %.2f\n", anomaly.Severity, anomaly.Confidence)

	if len(anomaly.RelatedMetrics) > 0 {
		if related, err := json.Marshal(anomaly.RelatedMetrics); err == nil {
			fmt.Fprintf(&b, "- Related metrics at detection time: %s\n", related)
		}
	}
	if len(anomaly.AffectedResources) > 0 {
		if affected, err := json.Marshal(anomaly.AffectedResources); err == nil {
			fmt.Fprintf(&b, "- Affected resources: %s\n", affected)
		}
	}

	if baseline != nil {
		fmt.Fprintf(&b, "\nBaseline context (%s over %d days, %d samples):\n",
			baseline.CalculationMethod, baseline.LookbackDays, baseline.SampleCount)
		fmt.Fprintf(&b, "- mean=%.2f stddev=%.2f p95=%.2f p99=%.2f max=%.2f\n",
			baseline.Mean, baseline.StdDev, baseline.P95, baseline.P99, baseline.MaxValue)
	}

	if mig != nil && len(mig.RelatedMigrations) > 0 {
		fmt.Fprintf(&b, "\nWorkload migrations in the correlation window:\n")
		for _, cm := range mig.RelatedMigrations {
			fmt.Fprintf(&b, "- %s (%s) %.1f hours before the anomaly, user change %+d, classified %s\n",
				cm.Event.MigrationID, cm.Event.MigrationType, cm.TimeDiffHours,
				cm.Event.UserCountChange, cm.Classification)
		}
	} else {
		b.WriteString("\nNo workload migrations in the correlation window.\n")
	}

	b.WriteString(`
Respond with ONLY this JSON structure:
{
  "primary_cause": "Clear, specific statement of the root cause",
  "contributing_factors": ["factor 1", "factor 2"],
  "confidence": 0.0,
  "evidence": ["specific evidence from the data above"]
}`)

	return b.String()
}

// aiRootCauseResult is the JSON shape the model must answer with.
type aiRootCauseResult struct {
	PrimaryCause        string   `json:"primary_cause"`
	ContributingFactors []string `json:"contributing_factors"`
	Confidence          float64  `json:"confidence"`
	Evidence            []string `json:"evidence"`
}

// parseRootCauseResponse decodes the model output into a RootCause. Markdown
// code fences around the JSON are tolerated.
func parseRootCauseResponse(content string) (*models.RootCause, error) {
	var res aiRootCauseResult
	if err := json.Unmarshal([]byte(stripFences(content)), &res); err != nil {
		return nil, faults.NewAnalysisPath("parse", err)
	}
	if res.PrimaryCause == "" {
		return nil, faults.NewAnalysisPath("parse", fmt.Errorf("response missing primary_cause"))
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return nil, faults.NewAnalysisPath("parse", fmt.Errorf("confidence %f out of range", res.Confidence))
	}

	return &models.RootCause{
		PrimaryCause:        res.PrimaryCause,
		ContributingFactors: res.ContributingFactors,
		Confidence:          res.Confidence,
		Evidence:            res.Evidence,
	}, nil
}

// stripFences removes markdown code fences around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
