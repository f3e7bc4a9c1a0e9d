package config

import (
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate baseline configuration
	if c.Baseline.LookbackDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "baseline.lookback_days",
			Message: fmt.Sprintf("lookback_days must be at least 1, got %d", c.Baseline.LookbackDays),
		})
	}

	switch c.Baseline.CalculationMethod {
	case "simple_stats", "rolling_average", "seasonal_decomposition":
	default:
		errs = append(errs, &ValidationError{
			Field:   "baseline.calculation_method",
			Message: fmt.Sprintf("must be one of simple_stats, rolling_average, seasonal_decomposition, got %q", c.Baseline.CalculationMethod),
		})
	}

	if c.Baseline.AIConfidenceThreshold < 0 || c.Baseline.AIConfidenceThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "baseline.ai_confidence_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %f", c.Baseline.AIConfidenceThreshold),
		})
	}

	for i, m := range c.Baseline.Metrics {
		if m.Name == "" || m.Column == "" || m.Table == "" {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("baseline.metrics[%d]", i),
				Message: "name, column and table are all required",
			})
		}
	}

	// Validate detection configuration
	if c.Detection.ThresholdSigma <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "detection.threshold_sigma",
			Message: fmt.Sprintf("threshold_sigma must be positive, got %f", c.Detection.ThresholdSigma),
		})
	}

	// Validate analysis configuration
	if c.Analysis.MigrationWindowHours < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.migration_window_hours",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Analysis.MigrationWindowHours),
		})
	}

	if c.Analysis.LikelyCauseWindowHours < 1 || c.Analysis.LikelyCauseWindowHours > c.Analysis.MigrationWindowHours {
		errs = append(errs, &ValidationError{
			Field:   "analysis.likely_cause_window_hours",
			Message: fmt.Sprintf("must be between 1 and migration_window_hours (%d), got %d", c.Analysis.MigrationWindowHours, c.Analysis.LikelyCauseWindowHours),
		})
	}

	if c.Analysis.MaxRecommendations < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.max_recommendations",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Analysis.MaxRecommendations),
		})
	}

	if c.Analysis.AIConfidenceThreshold < 0 || c.Analysis.AIConfidenceThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.ai_confidence_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %f", c.Analysis.AIConfidenceThreshold),
		})
	}

	switch c.Analysis.LowConfidencePolicy {
	case "replace", "blend":
	default:
		errs = append(errs, &ValidationError{
			Field:   "analysis.low_confidence_policy",
			Message: fmt.Sprintf("must be replace or blend, got %q", c.Analysis.LowConfidencePolicy),
		})
	}

	if c.Analysis.LLMTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.llm_timeout_seconds",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Analysis.LLMTimeoutSeconds),
		})
	}

	if c.Analysis.LLMMaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "analysis.llm_max_retries",
			Message: fmt.Sprintf("must not be negative, got %d", c.Analysis.LLMMaxRetries),
		})
	}

	// Validate LLM configuration
	switch c.LLM.Provider {
	case "gemini", "ollama":
	default:
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("must be gemini or ollama, got %q", c.LLM.Provider),
		})
	}

	// Validate logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error, got %q", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be json or text, got %q", c.Logging.Format),
		})
	}

	return errs
}
