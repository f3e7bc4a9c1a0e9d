package analyzer

import (
	"fmt"

	"github.com/driftwatch/driftwatch/internal/models"
)

// ruleConfidence is the fixed confidence assigned to every rule-based root
// cause. The value is deliberately below a well-grounded AI answer and above
// the guessing range.
const ruleConfidence = 0.75

// ruleBasedRootCause derives a root cause from the anomaly's type and
// magnitude alone. Pure function: identical input yields identical output.
func ruleBasedRootCause(anomaly *models.Anomaly, hasMigrations bool) *models.RootCause {
	var primaryCause string
	var factors []string

	switch anomaly.AnomalyType {
	case models.AnomalyStability:
		primaryCause = fmt.Sprintf("Elevated %s indicating system instability", anomaly.MetricName)
		factors = []string{
			"Increased error rate beyond normal thresholds",
			"Potential resource contention",
			"Possible configuration changes",
		}
	case models.AnomalyPerformance:
		primaryCause = fmt.Sprintf("Performance degradation in %s", anomaly.MetricName)
		factors = []string{
			"Increased workload or traffic",
			"Resource bottleneck",
			"Inefficient processing",
		}
	case models.AnomalyCost:
		primaryCause = fmt.Sprintf("Unexpected cost increase in %s", anomaly.MetricName)
		factors = []string{
			"Over-provisioned resources",
			"Inefficient resource utilization",
			"Unnecessary redundancy",
		}
	case models.AnomalyResource:
		primaryCause = fmt.Sprintf("Resource saturation in %s", anomaly.MetricName)
		factors = []string{
			"Workload growth beyond allocated capacity",
			"Possible resource leak",
			"Insufficient headroom for load spikes",
		}
	default:
		primaryCause = fmt.Sprintf("Anomalous behavior detected in %s", anomaly.MetricName)
		factors = []string{"Deviation from established baseline"}
	}

	if hasMigrations {
		factors = append(factors, "Recent system changes or migrations")
	}

	evidence := []string{
		fmt.Sprintf("Current value (%.2f) deviates %.2f sigma from baseline (%.2f)",
			anomaly.CurrentValue, anomaly.DeviationSigma, anomaly.BaselineValue),
		fmt.Sprintf("Deviation represents %.1f%% change", anomaly.DeviationPercentage),
		fmt.Sprintf("Confidence level: %.0f%%", anomaly.Confidence*100),
	}

	return &models.RootCause{
		PrimaryCause:        primaryCause,
		ContributingFactors: factors,
		Confidence:          ruleConfidence,
		Evidence:            evidence,
	}
}
