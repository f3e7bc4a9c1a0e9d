package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/driftwatch/driftwatch/internal/correlation"
	"github.com/driftwatch/driftwatch/internal/models"
)

// predictImpact states what happens if the anomaly is left unaddressed.
func predictImpact(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "Immediate service disruption likely. User impact imminent."
	case models.SeverityHigh:
		return "Significant degradation expected within hours. Action required soon."
	case models.SeverityMedium:
		return "Gradual degradation over days. Should be addressed proactively."
	case models.SeverityLow:
		return "Minor impact. Monitor for escalation."
	}
	return "Impact assessment pending"
}

// metricDescriptions maps metric names to plain-language phrasing.
var metricDescriptions = map[string]string{
	"error_rate":          "error rate",
	"execution_time":      "task completion time",
	"task_execution_time": "task completion time",
	"cpu_utilization":     "CPU usage",
	"memory_consumption":  "memory usage",
	"memory_usage":        "memory usage",
	"request_latency":     "response time",
	"compute_cost":        "computing costs",
	"throughput":          "processing speed",
}

// buildSummary derives the plain-language projection of the analysis. Pure
// function over its inputs.
func buildSummary(anomaly *models.Anomaly, rootCause *models.RootCause, recs []models.Recommendation, mig *correlation.MigrationAnalysis) *models.Summary {
	return &models.Summary{
		WhatHappened:                  explainWhatHappened(anomaly),
		WhyItHappened:                 explainWhy(rootCause, mig),
		WhatIsTheImpact:               explainImpact(anomaly),
		WhatImprovementsCanBeMade:     explainImprovements(recs),
		EstimatedBenefitIfImplemented: explainBenefits(anomaly, recs),
	}
}

func explainWhatHappened(anomaly *models.Anomaly) string {
	desc, ok := metricDescriptions[strings.ToLower(anomaly.MetricName)]
	if !ok {
		desc = strings.ReplaceAll(anomaly.MetricName, "_", " ")
	}

	direction, comparison := "increased", "higher than"
	if anomaly.CurrentValue < anomaly.BaselineValue {
		direction, comparison = "decreased", "lower than"
	}

	current, baseline := formatMetricValue(anomaly, anomaly.CurrentValue), formatMetricValue(anomaly, anomaly.BaselineValue)

	magnitude := fmt.Sprintf("it is %.1f times larger than typical variations we see",
		math.Abs(anomaly.DeviationSigma))
	if math.IsInf(anomaly.DeviationSigma, 0) {
		magnitude = "this metric normally does not vary at all, so any change stands out"
	}

	explanation := fmt.Sprintf(
		"We detected an unusual change in your system's %s. The %s %s to %s, which is %.0f%% %s the normal level of %s. "+
			"This change is significant: %s.",
		desc, desc, direction, current,
		math.Abs(anomaly.DeviationPercentage), comparison, baseline, magnitude)

	if n := len(anomaly.AffectedResources); n == 1 {
		explanation += " This issue is affecting 1 resource in your system."
	} else if n > 1 {
		explanation += fmt.Sprintf(" This issue is affecting %d resources in your system.", n)
	}
	return explanation
}

// formatMetricValue renders a value with units inferred from the metric type.
func formatMetricValue(anomaly *models.Anomaly, v float64) string {
	mt := strings.ToLower(anomaly.MetricType)
	switch {
	case strings.Contains(mt, "rate") || strings.Contains(mt, "%"):
		return fmt.Sprintf("%.1f%%", v)
	case strings.Contains(mt, "cost") || strings.Contains(mt, "usd"):
		return fmt.Sprintf("$%.2f", v)
	case strings.Contains(mt, "time") || strings.Contains(mt, "ms"):
		return fmt.Sprintf("%.0fms", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func explainWhy(rootCause *models.RootCause, mig *correlation.MigrationAnalysis) string {
	var b strings.Builder
	b.WriteString(rootCause.PrimaryCause)

	if len(rootCause.ContributingFactors) > 0 {
		b.WriteString("\n\nSeveral factors contributed to this issue:\n")
		for i, factor := range topN(rootCause.ContributingFactors, 3) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, factor)
		}
	}

	if len(rootCause.Evidence) > 0 {
		b.WriteString("\nWe identified this by observing:\n")
		for _, ev := range topN(rootCause.Evidence, 3) {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}

	if mig != nil && mig.LikelyCause {
		b.WriteString("\nMigration event detected: ")
		b.WriteString(mig.ImpactSummary)
		if len(mig.ImpactFactors) > 0 {
			b.WriteString("\nSpecific changes that may have caused this:\n")
			for _, factor := range topN(mig.ImpactFactors, 3) {
				fmt.Fprintf(&b, "- %s\n", factor)
			}
		}
	}

	pct := rootCause.Confidence * 100
	var confidence string
	switch {
	case pct >= 90:
		confidence = "very confident"
	case pct >= 75:
		confidence = "confident"
	case pct >= 60:
		confidence = "reasonably confident"
	default:
		confidence = "moderately confident"
	}
	fmt.Fprintf(&b, "\nWe are %s (%.0f%%) in this assessment based on the available data.", confidence, pct)

	return strings.TrimSpace(b.String())
}

func explainImpact(anomaly *models.Anomaly) string {
	impact := impactNarrative(anomaly)
	if anomaly.Severity == models.SeverityCritical || anomaly.Severity == models.SeverityHigh {
		impact += "\n\nTime is critical: the longer this issue persists, the greater the potential for business disruption, user dissatisfaction, and financial impact."
	}
	return impact
}

func impactNarrative(anomaly *models.Anomaly) string {
	switch anomaly.AnomalyType {
	case models.AnomalyStability:
		switch anomaly.Severity {
		case models.SeverityCritical:
			return "Your system is experiencing critical stability issues that could lead to complete service outages. Users may be unable to access your services. This requires immediate attention to prevent business disruption."
		case models.SeverityHigh:
			return "Your system's reliability is significantly degraded. Users are likely experiencing errors and service interruptions. If not addressed quickly, this could escalate to a complete outage."
		case models.SeverityMedium:
			return "Your system is showing signs of instability. Some users may experience occasional errors or degraded service. While not critical yet, this should be addressed soon to prevent escalation."
		case models.SeverityLow:
			return "Minor stability issues detected. Most users won't notice any problems, but monitoring is recommended to ensure it doesn't worsen."
		}
	case models.AnomalyPerformance:
		switch anomaly.Severity {
		case models.SeverityCritical:
			return "Your system is running extremely slowly, severely impacting user experience. Users are likely abandoning tasks due to long wait times."
		case models.SeverityHigh:
			return "Performance has degraded noticeably. Users are experiencing slow response times that may lead to reduced engagement or lost business."
		case models.SeverityMedium:
			return "System performance is slower than normal. While still functional, users may notice delays that could affect their satisfaction and productivity."
		case models.SeverityLow:
			return "Minor performance degradation detected. Most users won't notice significant differences, but efficiency could be improved."
		}
	case models.AnomalyCost:
		switch anomaly.Severity {
		case models.SeverityCritical, models.SeverityHigh:
			return fmt.Sprintf("Your computing costs have spiked to $%.2f, which is %.0f%% higher than your normal spending of $%.2f. This represents significant unexpected expense that could impact your budget.",
				anomaly.CurrentValue, math.Abs(anomaly.DeviationPercentage), anomaly.BaselineValue)
		case models.SeverityMedium:
			return fmt.Sprintf("Your costs have risen to $%.2f, which is %.0f%% above normal. While not critical, this represents inefficient resource usage that could be optimized.",
				anomaly.CurrentValue, math.Abs(anomaly.DeviationPercentage))
		case models.SeverityLow:
			return "Costs are slightly elevated but within acceptable ranges. Optimization opportunities exist to improve efficiency."
		}
	case models.AnomalyResource:
		switch anomaly.Severity {
		case models.SeverityCritical:
			return "System resources are critically overloaded. This could lead to crashes, data loss, or complete service failure. Immediate action is required."
		case models.SeverityHigh:
			return "Resources are heavily strained. The system is at risk of becoming unstable or unresponsive. Performance degradation is likely affecting users."
		case models.SeverityMedium:
			return "Resource usage is higher than normal. The system is still functioning, but there is reduced capacity to handle additional load or unexpected spikes."
		case models.SeverityLow:
			return "Resource usage is slightly elevated. The system is stable but could benefit from optimization."
		}
	}
	return "This anomaly is affecting your system's normal operation and should be investigated."
}

func explainImprovements(recs []models.Recommendation) string {
	if len(recs) == 0 {
		return "We're still analyzing the best course of action. Please check back shortly for specific recommendations."
	}

	var b strings.Builder
	b.WriteString("Based on our analysis, here are the actions we recommend:\n")
	for _, rec := range recs {
		fmt.Fprintf(&b, "\n[%s] %s\n", strings.ToUpper(string(rec.Priority)), rec.Action)
		fmt.Fprintf(&b, "  Why: %s\n", rec.Rationale)
		for _, step := range topN(rec.ImplementationSteps, 3) {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
		if rec.EstimatedEffort != "" {
			fmt.Fprintf(&b, "  Time needed: %s\n", rec.EstimatedEffort)
		}
	}
	return strings.TrimSpace(b.String())
}

func explainBenefits(anomaly *models.Anomaly, recs []models.Recommendation) string {
	if len(recs) == 0 {
		return "Benefits will be determined once specific recommendations are available."
	}

	var benefits []string
	switch anomaly.AnomalyType {
	case models.AnomalyStability:
		benefits = append(benefits,
			"Improved reliability: implementing these recommendations should significantly reduce errors and restore system stability, meaning fewer service interruptions and a better user experience.",
			"Reduced downtime: proactive fixes help prevent outages and the associated costs of lost productivity and revenue.")
	case models.AnomalyPerformance:
		benefits = append(benefits,
			fmt.Sprintf("Faster response times: these optimizations will help bring response times back toward normal levels (baseline: %.0fms). The exact improvement depends on implementation and system conditions.", anomaly.BaselineValue),
			"Better user experience: faster systems lead to higher satisfaction and engagement.")
	case models.AnomalyCost:
		excess := anomaly.CurrentValue - anomaly.BaselineValue
		benefits = append(benefits,
			fmt.Sprintf("Quantifiable cost savings: right-sizing resources can save $%.2f per day (approximately $%.2f per month), based on returning to your baseline cost of $%.2f.",
				excess, excess*30, anomaly.BaselineValue))
		if costRecsExplainPerformance(recs) {
			benefits = append(benefits,
				"No performance trade-off: these cost optimizations can be implemented without negatively impacting system performance.")
		} else {
			benefits = append(benefits,
				"Improved efficiency: these changes optimize resource usage while maintaining or improving system performance.")
		}
	case models.AnomalyResource:
		benefits = append(benefits,
			"Better resource utilization: optimizing usage frees capacity for growth and reduces the risk of resource-related failures.",
			"Cost efficiency: better resource management leads to savings while improving overall system reliability. Specific savings depend on implementation.")
	}

	if anomaly.Severity == models.SeverityCritical || anomaly.Severity == models.SeverityHigh {
		benefits = append(benefits,
			"Quick wins: many of these improvements can be implemented within hours to days and show immediate results.")
	}
	benefits = append(benefits,
		"Long-term stability: addressing this issue now prevents recurrence and establishes better practices for system health monitoring.")

	return strings.Join(benefits, "\n\n")
}

// costRecsExplainPerformance reports whether any recommendation carries a
// performance safety note for its cost impact.
func costRecsExplainPerformance(recs []models.Recommendation) bool {
	for _, rec := range recs {
		if strings.Contains(strings.ToLower(rec.CostImpact), "performance") {
			return true
		}
	}
	return false
}

func topN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
