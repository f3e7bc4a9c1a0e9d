package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/llm/adapter"
	"github.com/driftwatch/driftwatch/internal/llm/types"
	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

// Optimizer asks the LLM which calculation method fits a metric's data shape
// and falls back to a rule-based pick when the answer is missing or weak.
type Optimizer struct {
	llm                 adapter.Adapter
	confidenceThreshold float64
	timeout             time.Duration
	logger              *zap.Logger
}

// NewOptimizer creates a method optimizer. llm may be an unconfigured
// adapter; every recommendation then comes from the rules.
func NewOptimizer(llm adapter.Adapter, confidenceThreshold float64, timeout time.Duration, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		llm:                 llm,
		confidenceThreshold: confidenceThreshold,
		timeout:             timeout,
		logger:              logger,
	}
}

// dataProfile summarizes the shape of a sample series for method selection.
type dataProfile struct {
	SampleCount          int     `json:"sample_count"`
	SpanHours            float64 `json:"span_hours"`
	CoefficientVariation float64 `json:"coefficient_of_variation"`
	TrendStrength        float64 `json:"trend_strength"`
	DailyPatternStrength float64 `json:"daily_pattern_strength"`
	Skewness             float64 `json:"skewness"`
}

// methodRecommendation is the JSON shape the LLM must answer with.
type methodRecommendation struct {
	RecommendedMethod string  `json:"recommended_method"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
}

// Recommend returns the calculation method to use for the series and a short
// note about how the pick was made. An empty method means "no opinion, use
// the configured default".
func (o *Optimizer) Recommend(ctx context.Context, metricName string, samples []store.Sample) (models.CalculationMethod, string) {
	if len(samples) < 2 {
		return "", ""
	}

	profile := profileSamples(samples)

	if o.llm != nil {
		if method, note, ok := o.askLLM(ctx, metricName, profile); ok {
			return method, note
		}
	}

	method, reason := ruleBasedPick(profile)
	return method, "method selected by data profile: " + reason
}

func (o *Optimizer) askLLM(ctx context.Context, metricName string, profile dataProfile) (models.CalculationMethod, string, bool) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return "", "", false
	}

	prompt := fmt.Sprintf(`You select the statistical baseline calculation method for a cloud workload metric.

Metric: %s
Data profile: %s

Choose exactly one method:
- simple_stats: flat statistics, best for stable low-variance series
- rolling_average: smoothed statistics, best for trending or noisy series
- seasonal_decomposition: hour-of-day deseasonalized statistics, best for series with a strong daily pattern and at least two weeks of data

Respond with ONLY a JSON object:
{"recommended_method": "...", "confidence": 0.0, "reasoning": "..."}`, metricName, profileJSON)

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.llm.Complete(callCtx, types.CompletionRequest{
		Messages: []types.Message{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		o.logger.Debug("method optimization llm call failed", zap.String("metric", metricName), zap.Error(err))
		return "", "", false
	}

	var rec methodRecommendation
	if err := json.Unmarshal([]byte(stripJSONFences(resp.Content)), &rec); err != nil {
		o.logger.Debug("method optimization response unparsable", zap.String("metric", metricName), zap.Error(err))
		return "", "", false
	}

	method := models.CalculationMethod(rec.RecommendedMethod)
	if !method.Valid() {
		return "", "", false
	}
	if rec.Confidence < o.confidenceThreshold {
		o.logger.Debug("method recommendation below confidence threshold",
			zap.String("metric", metricName),
			zap.Float64("confidence", rec.Confidence),
		)
		return "", "", false
	}

	note := fmt.Sprintf("method recommended by %s (confidence %.2f)", o.llm.Model(), rec.Confidence)
	return method, note, true
}

// ruleBasedPick chooses a method from the data profile alone.
func ruleBasedPick(p dataProfile) (models.CalculationMethod, string) {
	if p.DailyPatternStrength > 0.3 && p.SpanHours >= 14*24 {
		return models.MethodSeasonalDecomposition, "strong daily pattern over two or more weeks"
	}
	if p.TrendStrength > 0.2 || p.CoefficientVariation > 0.5 {
		return models.MethodRollingAverage, "trending or high-variance series"
	}
	return models.MethodSimpleStats, "stable series"
}

// profileSamples computes the data shape summary fed to the pick.
func profileSamples(samples []store.Sample) dataProfile {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	mean, stdDev := meanStdDev(values)

	p := dataProfile{
		SampleCount: len(samples),
		SpanHours:   samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp).Hours(),
	}
	if mean != 0 {
		p.CoefficientVariation = math.Abs(stdDev / mean)
	}

	// Skewness hints at the distribution shape for the LLM pick.
	if stdDev > 0 {
		var cubed float64
		for _, v := range values {
			d := (v - mean) / stdDev
			cubed += d * d * d
		}
		p.Skewness = cubed / float64(len(values))
	}

	// Trend strength: relative shift between the first and last third.
	third := len(values) / 3
	if third > 0 && mean != 0 {
		firstMean, _ := meanStdDev(values[:third])
		lastMean, _ := meanStdDev(values[len(values)-third:])
		p.TrendStrength = math.Abs(lastMean-firstMean) / math.Abs(mean)
	}

	// Daily pattern strength: spread of hourly means relative to overall spread.
	if stdDev > 0 {
		var hourSum, hourCount [24]float64
		for _, s := range samples {
			h := s.Timestamp.UTC().Hour()
			hourSum[h] += s.Value
			hourCount[h]++
		}
		hourMeans := make([]float64, 0, 24)
		for h := 0; h < 24; h++ {
			if hourCount[h] > 0 {
				hourMeans = append(hourMeans, hourSum[h]/hourCount[h])
			}
		}
		if len(hourMeans) > 1 {
			_, hourStd := meanStdDev(hourMeans)
			p.DailyPatternStrength = hourStd / stdDev
		}
	}

	return p
}

// stripJSONFences removes markdown code fences around a JSON payload.
func stripJSONFences(s string) string {
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
