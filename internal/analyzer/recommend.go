package analyzer

import (
	"fmt"
	"sort"

	"github.com/driftwatch/driftwatch/internal/models"
)

// buildRecommendations produces the prioritized action list for an anomaly,
// ordered by priority descending and capped at max. Pure function.
func buildRecommendations(anomaly *models.Anomaly, max int) []models.Recommendation {
	var recs []models.Recommendation

	switch anomaly.AnomalyType {
	case models.AnomalyStability:
		recs = stabilityRecommendations(anomaly)
	case models.AnomalyPerformance:
		recs = performanceRecommendations()
	case models.AnomalyCost:
		recs = costRecommendations(anomaly)
	case models.AnomalyResource:
		recs = resourceRecommendations(anomaly)
	default:
		recs = []models.Recommendation{{
			Priority:       models.SeverityMedium,
			Action:         fmt.Sprintf("Investigate the deviation in %s", anomaly.MetricName),
			Rationale:      "The metric left its established baseline without a known pattern match",
			ExpectedImpact: "Understand whether the change is benign or requires action",
			ImplementationSteps: []string{
				"Compare the metric against correlated metrics over the same window",
				"Review recent deployments and configuration changes",
			},
			EstimatedEffort: "30-60 minutes",
			RiskLevel:       "low",
		}}
	}

	// Stable sort keeps the within-priority template order deterministic.
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() > recs[j].Priority.Rank()
	})

	if max > 0 && len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

func stabilityRecommendations(anomaly *models.Anomaly) []models.Recommendation {
	return []models.Recommendation{
		{
			Priority:       models.SeverityHigh,
			Action:         fmt.Sprintf("Investigate and address elevated %s", anomaly.MetricName),
			Rationale:      "High error rates indicate system instability that requires immediate attention",
			ExpectedImpact: "Restore system stability and prevent cascading failures",
			ImplementationSteps: []string{
				"Review recent logs for error patterns",
				"Check for resource constraints",
				"Verify configuration changes",
				"Implement additional error handling",
			},
			EstimatedEffort: "30-60 minutes",
			RiskLevel:       "low",
		},
		{
			Priority:       models.SeverityMedium,
			Action:         "Implement enhanced monitoring and alerting",
			Rationale:      "Early detection prevents issues from escalating",
			ExpectedImpact: "Faster incident response and reduced downtime",
			ImplementationSteps: []string{
				"Set up alerts for error rate thresholds",
				"Configure log aggregation",
				"Create dashboard for key metrics",
			},
			EstimatedEffort: "1-2 hours",
			RiskLevel:       "low",
		},
	}
}

func performanceRecommendations() []models.Recommendation {
	return []models.Recommendation{
		{
			Priority:       models.SeverityHigh,
			Action:         "Optimize resource allocation",
			Rationale:      "Performance degradation often indicates resource bottlenecks",
			ExpectedImpact: "Improve response times by 20-40%",
			ImplementationSteps: []string{
				"Analyze resource utilization patterns",
				"Identify bottlenecks (CPU, memory, I/O)",
				"Scale resources appropriately",
				"Implement caching where applicable",
			},
			EstimatedEffort: "1-3 hours",
			RiskLevel:       "medium",
		},
		{
			Priority:       models.SeverityMedium,
			Action:         "Review and optimize queries/operations",
			Rationale:      "Inefficient operations compound under load",
			ExpectedImpact: "Reduce latency and improve throughput",
			ImplementationSteps: []string{
				"Profile slow operations",
				"Optimize database queries",
				"Implement connection pooling",
				"Add appropriate indexes",
			},
			EstimatedEffort: "2-4 hours",
			RiskLevel:       "low",
		},
	}
}

func costRecommendations(anomaly *models.Anomaly) []models.Recommendation {
	return []models.Recommendation{
		{
			Priority:       models.SeverityHigh,
			Action:         "Right-size over-provisioned resources",
			Rationale:      "Resources are allocated beyond actual usage requirements",
			ExpectedImpact: "Reduce costs by 20-40% without performance impact",
			ImplementationSteps: []string{
				"Analyze actual resource utilization",
				"Identify over-provisioned instances",
				"Gradually reduce resource allocation",
				"Monitor performance during changes",
			},
			EstimatedEffort: "1-2 hours",
			RiskLevel:       "low",
			CostImpact:      costSafetyNote(anomaly),
		},
		{
			Priority:       models.SeverityMedium,
			Action:         "Implement auto-scaling policies",
			Rationale:      "Match resource allocation to actual demand",
			ExpectedImpact: "Optimize costs while maintaining performance",
			ImplementationSteps: []string{
				"Define scaling metrics and thresholds",
				"Configure auto-scaling groups",
				"Set minimum and maximum limits",
				"Test scaling behavior",
			},
			EstimatedEffort: "2-3 hours",
			RiskLevel:       "medium",
			CostImpact:      "Save 30-50% on compute costs during low-traffic periods",
		},
	}
}

func resourceRecommendations(anomaly *models.Anomaly) []models.Recommendation {
	return []models.Recommendation{
		{
			Priority:       models.SeverityHigh,
			Action:         fmt.Sprintf("Increase capacity for %s or shed load", anomaly.MetricName),
			Rationale:      "Sustained saturation degrades every workload sharing the resource",
			ExpectedImpact: "Restore headroom and prevent throttling or OOM events",
			ImplementationSteps: []string{
				"Confirm the saturation against raw utilization data",
				"Scale the constrained resource vertically or horizontally",
				"Check for runaway processes or leaks",
			},
			EstimatedEffort: "1-2 hours",
			RiskLevel:       "medium",
		},
		{
			Priority:       models.SeverityMedium,
			Action:         "Review workload placement and limits",
			Rationale:      "Misplaced or unlimited workloads cause recurring saturation",
			ExpectedImpact: "Stable utilization within provisioned capacity",
			ImplementationSteps: []string{
				"Audit per-workload resource limits",
				"Rebalance workloads across nodes",
				"Set requests and limits where missing",
			},
			EstimatedEffort: "2-4 hours",
			RiskLevel:       "low",
		},
	}
}

// costSafetyNote explains why a cost reduction will not hurt performance,
// citing observed utilization when the anomaly carries it.
func costSafetyNote(anomaly *models.Anomaly) string {
	if cpu, ok := anomaly.RelatedMetrics["cpu_utilization"]; ok {
		return fmt.Sprintf(
			"Performance will not be affected because current CPU utilization is %.1f%%, well below provisioned capacity", cpu)
	}
	if mem, ok := anomaly.RelatedMetrics["memory_utilization"]; ok {
		return fmt.Sprintf(
			"Performance will not be affected because current memory utilization is %.1f%%, well below provisioned capacity", mem)
	}
	return "Performance will not be affected because current utilization is well below provisioned capacity"
}
