package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/driftwatch/driftwatch/internal/audit"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

// engineImpl is the store-backed implementation of Engine.
type engineImpl struct {
	cfg       *config.Config
	samples   store.SampleStore
	baselines store.BaselineStore
	optimizer *Optimizer
	auditor   audit.Logger
	now       func() time.Time
}

// NewEngine creates a baseline engine. optimizer may be nil when AI method
// selection is disabled; auditor may be nil in tests.
func NewEngine(cfg *config.Config, st store.Store, optimizer *Optimizer, auditor audit.Logger) Engine {
	return &engineImpl{
		cfg:       cfg,
		samples:   st,
		baselines: st,
		optimizer: optimizer,
		auditor:   auditor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *engineImpl) Calculate(ctx context.Context, spec config.MetricSpec, method models.CalculationMethod, lookbackDays int) (*models.Baseline, error) {
	start := e.now()

	if method == "" {
		method = models.CalculationMethod(e.cfg.Baseline.CalculationMethod)
	}
	if !method.Valid() {
		return nil, faults.NewValidation("calculation_method", "unknown method %q", string(method))
	}
	if lookbackDays <= 0 {
		lookbackDays = e.cfg.Baseline.LookbackDays
	}

	since := start.AddDate(0, 0, -lookbackDays)
	samples, err := e.samples.FetchSamples(ctx, spec.Table, spec.Column, since)
	if err != nil {
		e.recordFailure(ctx, spec.Name, err)
		return nil, err
	}

	if len(samples) == 0 {
		err := faults.NewValidation("metric_name",
			"no data found for metric %s in %s.%s over the last %d days",
			spec.Name, spec.Table, spec.Column, lookbackDays)
		e.recordFailure(ctx, spec.Name, err)
		return nil, err
	}

	var optNote string
	if e.optimizer != nil && e.cfg.Baseline.UseAIOptimization {
		if picked, note := e.optimizer.Recommend(ctx, spec.Name, samples); picked != "" {
			method = picked
			optNote = note
		}
	}

	b := computeBaseline(samples, method)
	if optNote != "" && b.Notes == "" {
		b.Notes = optNote
	}
	b.BaselineID = fmt.Sprintf("baseline-%s-%s", spec.Name, start.Format("20060102-150405"))
	b.MetricName = spec.Name
	b.LookbackDays = lookbackDays
	b.CalculatedAt = start
	b.DataSource = spec.Table + "." + spec.Column

	if err := e.baselines.SaveBaseline(ctx, b); err != nil {
		e.recordFailure(ctx, spec.Name, err)
		return nil, err
	}

	metrics.BaselinesCalculated.WithLabelValues(spec.Name, string(b.CalculationMethod), "success").Inc()
	metrics.BaselineCalculationDuration.WithLabelValues(spec.Name, string(b.CalculationMethod)).
		Observe(e.now().Sub(start).Seconds())
	if e.auditor != nil {
		_ = e.auditor.LogBaselineCalculated(ctx, b.BaselineID, spec.Name, b.SampleCount)
	}

	return b, nil
}

func (e *engineImpl) CalculateAll(ctx context.Context) ([]*models.Baseline, map[string]error) {
	var results []*models.Baseline
	failures := make(map[string]error)

	for _, spec := range e.cfg.Baseline.Metrics {
		if !spec.Enabled {
			continue
		}
		b, err := e.Calculate(ctx, spec, "", 0)
		if err != nil {
			failures[spec.Name] = err
			continue
		}
		results = append(results, b)
	}
	return results, failures
}

func (e *engineImpl) Latest(ctx context.Context, metricName string) (*models.Baseline, error) {
	return e.baselines.LatestBaseline(ctx, metricName)
}

func (e *engineImpl) recordFailure(ctx context.Context, metricName string, err error) {
	metrics.BaselinesCalculated.WithLabelValues(metricName, "", "error").Inc()
	if e.auditor != nil {
		_ = e.auditor.LogBaselineFailed(ctx, metricName, err)
	}
}

// ─── statistics ───────────────────────────────────────────────────────────────

// minSeasonalSpan is the shortest data span for which hour-of-day
// decomposition is meaningful.
const minSeasonalSpan = 14 * 24 * time.Hour

// rollingWindow is the smoothing window for rolling_average, sized for
// hourly samples (one day of context per point).
const rollingWindow = 24

func computeBaseline(samples []store.Sample, method models.CalculationMethod) *models.Baseline {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	var b *models.Baseline
	switch method {
	case models.MethodRollingAverage:
		b = rollingAverageBaseline(values)
	case models.MethodSeasonalDecomposition:
		b = seasonalBaseline(samples)
	default:
		b = simpleStatsBaseline(values)
	}
	return b
}

// simpleStatsBaseline computes flat statistics over the raw series.
func simpleStatsBaseline(values []float64) *models.Baseline {
	if len(values) == 0 {
		return &models.Baseline{CalculationMethod: models.MethodSimpleStats}
	}
	mean, stdDev := meanStdDev(values)
	sorted := sortedCopy(values)

	return &models.Baseline{
		Mean:              mean,
		StdDev:            stdDev,
		MinValue:          sorted[0],
		MaxValue:          sorted[len(sorted)-1],
		P50:               percentile(sorted, 50),
		P95:               percentile(sorted, 95),
		P99:               percentile(sorted, 99),
		SampleCount:       int64(len(values)),
		CalculationMethod: models.MethodSimpleStats,
	}
}

// rollingAverageBaseline computes statistics over a moving-average smoothed
// series. Percentiles stay on the raw series so tail behavior is not hidden
// by the smoothing.
func rollingAverageBaseline(values []float64) *models.Baseline {
	if len(values) < rollingWindow {
		b := simpleStatsBaseline(values)
		b.Notes = "insufficient samples for rolling_average, used simple_stats"
		return b
	}

	smoothed := make([]float64, 0, len(values)-rollingWindow+1)
	var windowSum float64
	for i, v := range values {
		windowSum += v
		if i >= rollingWindow {
			windowSum -= values[i-rollingWindow]
		}
		if i >= rollingWindow-1 {
			smoothed = append(smoothed, windowSum/rollingWindow)
		}
	}

	mean, stdDev := meanStdDev(smoothed)
	sortedRaw := sortedCopy(values)

	return &models.Baseline{
		Mean:              mean,
		StdDev:            stdDev,
		MinValue:          sortedRaw[0],
		MaxValue:          sortedRaw[len(sortedRaw)-1],
		P50:               percentile(sortedRaw, 50),
		P95:               percentile(sortedRaw, 95),
		P99:               percentile(sortedRaw, 99),
		SampleCount:       int64(len(values)),
		CalculationMethod: models.MethodRollingAverage,
	}
}

// seasonalBaseline removes the hour-of-day component before computing spread.
// The mean stays the overall mean; the standard deviation comes from the
// deseasonalized residuals, so a metric with a strong daily rhythm is not
// flagged every evening peak.
func seasonalBaseline(samples []store.Sample) *models.Baseline {
	if len(samples) == 0 {
		return simpleStatsBaseline(nil)
	}

	span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	if span < minSeasonalSpan {
		b := simpleStatsBaseline(values)
		b.Notes = "data span below two weeks, used simple_stats"
		return b
	}

	// Hourly means over the whole window.
	var hourSum, hourCount [24]float64
	for _, s := range samples {
		h := s.Timestamp.UTC().Hour()
		hourSum[h] += s.Value
		hourCount[h]++
	}

	overallMean, _ := meanStdDev(values)

	// Residual = value - hourly mean. Spread of residuals is the
	// deseasonalized variability.
	residuals := make([]float64, 0, len(samples))
	for _, s := range samples {
		h := s.Timestamp.UTC().Hour()
		hourMean := overallMean
		if hourCount[h] > 0 {
			hourMean = hourSum[h] / hourCount[h]
		}
		residuals = append(residuals, s.Value-hourMean)
	}
	_, residStdDev := meanStdDev(residuals)

	sorted := sortedCopy(values)

	return &models.Baseline{
		Mean:              overallMean,
		StdDev:            residStdDev,
		MinValue:          sorted[0],
		MaxValue:          sorted[len(sorted)-1],
		P50:               percentile(sorted, 50),
		P95:               percentile(sorted, 95),
		P99:               percentile(sorted, 99),
		SampleCount:       int64(len(samples)),
		CalculationMethod: models.MethodSeasonalDecomposition,
	}
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqSum float64
	for _, v := range values {
		d := v - mean
		sqSum += d * d
	}
	return mean, math.Sqrt(sqSum / float64(len(values)))
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// percentile returns the p-th percentile of a sorted series using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
