package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/audit"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/correlation"
	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/llm/adapter"
	"github.com/driftwatch/driftwatch/internal/llm/types"
	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
	"github.com/driftwatch/driftwatch/internal/store"
)

// Analysis path labels for metrics and the model_used field.
const (
	pathAI        = "ai"
	pathRuleBased = "rule_based"
)

type analyzerImpl struct {
	cfg        *config.Config
	store      store.Store
	llm        adapter.Adapter
	correlator *correlation.Correlator
	auditor    audit.Logger
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalyzer creates the analysis pipeline. llm may be an unconfigured
// adapter and auditor may be nil; both degrade gracefully.
func NewAnalyzer(cfg *config.Config, st store.Store, llm adapter.Adapter, auditor audit.Logger, logger *zap.Logger) Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &analyzerImpl{
		cfg:        cfg,
		store:      st,
		llm:        llm,
		correlator: correlation.New(st, cfg.Analysis.MigrationWindowHours, cfg.Analysis.LikelyCauseWindowHours),
		auditor:    auditor,
		logger:     logger,
		now:        time.Now,
	}
}

func (a *analyzerImpl) Analyze(ctx context.Context, anomaly *models.Anomaly) (*models.AnomalyAnalysis, error) {
	start := a.now()
	analysisID := "analysis-" + uuid.NewString()

	if a.auditor != nil {
		_ = a.auditor.LogAnalysisStarted(ctx, analysisID, anomaly.MetricName, string(anomaly.Severity))
	}

	// Context gathering is best effort. A missing baseline or an unreadable
	// migration table degrades the analysis, it does not abort it.
	baseline, err := a.store.LatestBaseline(ctx, anomaly.MetricName)
	if err != nil {
		a.logger.Warn("baseline lookup failed during analysis",
			zap.String("metric", anomaly.MetricName), zap.Error(err))
		baseline = nil
	}

	correlated, err := a.correlator.FindCorrelated(ctx, anomaly.DetectedAt)
	if err != nil {
		a.logger.Warn("migration correlation failed during analysis",
			zap.String("analysis_id", analysisID), zap.Error(err))
		correlated = nil
	}
	migAnalysis := a.correlator.AnalyzeImpact(anomaly, correlated)

	rootCause, path, modelUsed := a.rootCause(ctx, analysisID, anomaly, baseline, migAnalysis)

	if len(correlated) > 0 {
		if rootCause.CorrelationData == nil {
			rootCause.CorrelationData = map[string]interface{}{}
		}
		rootCause.CorrelationData["migration_analysis"] = migAnalysis
		if migAnalysis.LikelyCause {
			rootCause.Evidence = append(migAnalysis.ImpactFactors, rootCause.Evidence...)
		}
	}

	recs := buildRecommendations(anomaly, a.cfg.Analysis.MaxRecommendations)

	analysis := &models.AnomalyAnalysis{
		AnalysisID:         analysisID,
		Anomaly:            *anomaly,
		RootCause:          *rootCause,
		Recommendations:    recs,
		AnalyzedAt:         start,
		AnalysisDurationMS: a.now().Sub(start).Milliseconds(),
		ModelUsed:          modelUsed,
		PredictedImpact:    predictImpact(anomaly.Severity),
		Summary:            buildSummary(anomaly, rootCause, recs, migAnalysis),
	}

	if err := a.store.SaveAnalysis(ctx, analysis); err != nil {
		metrics.AnalysesTotal.WithLabelValues(path, "error").Inc()
		if a.auditor != nil {
			_ = a.auditor.LogAnalysisFailed(ctx, analysisID, err)
		}
		return nil, faults.NewPersistence("analysis", err)
	}

	elapsed := a.now().Sub(start)
	metrics.AnalysesTotal.WithLabelValues(path, "success").Inc()
	metrics.AnalysisDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	if a.auditor != nil {
		_ = a.auditor.LogAnalysisCompleted(ctx, analysisID, modelUsed, elapsed)
	}

	a.logger.Info("anomaly analysis completed",
		zap.String("analysis_id", analysisID),
		zap.String("metric", anomaly.MetricName),
		zap.String("severity", string(anomaly.Severity)),
		zap.String("path", path),
		zap.Float64("confidence", rootCause.Confidence),
	)

	return analysis, nil
}

// rootCause runs the AI path and guarantees a result via the rule-based
// fallback. Returns the root cause, the path label and the model identifier.
func (a *analyzerImpl) rootCause(ctx context.Context, analysisID string, anomaly *models.Anomaly, baseline *models.Baseline, mig *correlation.MigrationAnalysis) (*models.RootCause, string, string) {
	hasMigrations := mig != nil && len(mig.RelatedMigrations) > 0
	ruleResult := ruleBasedRootCause(anomaly, hasMigrations)

	aiResult, fallbackReason := a.aiRootCause(ctx, anomaly, baseline, mig)
	if aiResult == nil {
		a.recordFallback(ctx, analysisID, fallbackReason)
		return ruleResult, pathRuleBased, pathRuleBased
	}

	if aiResult.Confidence < a.cfg.Analysis.AIConfidenceThreshold {
		if a.cfg.Analysis.LowConfidencePolicy == "blend" {
			a.logger.Info("blending low-confidence AI root cause with rules",
				zap.String("analysis_id", analysisID),
				zap.Float64("ai_confidence", aiResult.Confidence),
			)
			return blendRootCause(aiResult, ruleResult), pathAI, a.llm.Model()
		}
		a.recordFallback(ctx, analysisID, "low_confidence")
		return ruleResult, pathRuleBased, pathRuleBased
	}

	return aiResult, pathAI, a.llm.Model()
}

// aiRootCause attempts the LLM analysis with a hard per-attempt timeout and
// a bounded retry count. A nil result carries the final fallback reason.
func (a *analyzerImpl) aiRootCause(ctx context.Context, anomaly *models.Anomaly, baseline *models.Baseline, mig *correlation.MigrationAnalysis) (*models.RootCause, string) {
	if a.llm == nil || a.llm.Provider() == string(adapter.ProviderNone) {
		return nil, "disabled"
	}

	prompt := buildRootCausePrompt(anomaly, baseline, mig)
	timeout := time.Duration(a.cfg.Analysis.LLMTimeoutSeconds) * time.Second
	attempts := 1 + a.cfg.Analysis.LLMMaxRetries

	reason := "completion_error"
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, reason
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := a.llm.Complete(callCtx, types.CompletionRequest{
			Messages: []types.Message{
				{Role: "system", Content: rootCauseSystemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.3,
			MaxTokens:   2048,
		})
		cancel()

		if err != nil {
			if errors.Is(err, adapter.ErrProviderNotConfigured) {
				return nil, "disabled"
			}
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			} else {
				reason = "completion_error"
			}
			a.logger.Warn("AI root cause attempt failed",
				zap.Int("attempt", attempt+1), zap.String("reason", reason), zap.Error(err))
			continue
		}

		rc, err := parseRootCauseResponse(resp.Content)
		if err != nil {
			reason = "parse_error"
			a.logger.Warn("AI root cause response unparsable",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		return rc, ""
	}

	return nil, reason
}

func (a *analyzerImpl) recordFallback(ctx context.Context, analysisID, reason string) {
	metrics.FallbackActivations.WithLabelValues(reason).Inc()
	if a.auditor != nil {
		_ = a.auditor.LogFallbackUsed(ctx, analysisID, reason)
	}
}

// blendRootCause keeps the AI narrative but grounds it with the rule-based
// factors and evidence. Confidence is floored at the rule value: the blend
// carries at least the deterministic grounding.
func blendRootCause(ai, rule *models.RootCause) *models.RootCause {
	blended := &models.RootCause{
		PrimaryCause: ai.PrimaryCause,
		Confidence:   ai.Confidence,
		Evidence:     append([]string{}, ai.Evidence...),
	}

	seen := make(map[string]bool)
	for _, f := range ai.ContributingFactors {
		seen[f] = true
		blended.ContributingFactors = append(blended.ContributingFactors, f)
	}
	for _, f := range rule.ContributingFactors {
		if !seen[f] {
			blended.ContributingFactors = append(blended.ContributingFactors, f)
		}
	}
	blended.Evidence = append(blended.Evidence, rule.Evidence...)

	if blended.Confidence < rule.Confidence {
		blended.Confidence = rule.Confidence
	}
	return blended
}
