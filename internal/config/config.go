package config

import "context"

// Package config provides configuration management for driftwatch.
//
// Responsibilities:
//   - Load configuration from a YAML file and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support hot reloading of tunable settings (thresholds, LLM model)
//   - Manage sensitive data (LLM API keys) via environment only
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (DRIFTWATCH_* prefix)
//   2. YAML config file (default: /etc/driftwatch/config.yaml)
//   3. Built-in defaults
//
// Main Configuration Sections:
//
//   1. Server
//      - host, port: HTTP listen address (default 0.0.0.0:8080)
//
//   2. Database
//      - sqlite_path: Path to the SQLite file backing both the metric
//        source tables and the durable baseline/analysis tables.
//        ":memory:" is supported for tests.
//
//   3. Baseline
//      - lookback_days: Historical window for baseline calculation
//      - calculation_method: simple_stats | rolling_average | seasonal_decomposition
//      - metrics: List of configured metric streams {name, column, table, enabled}
//      - use_ai_optimization: Ask the LLM to pick the calculation method
//      - ai_confidence_threshold: Minimum confidence to accept the AI pick
//
//   4. Detection
//      - threshold_sigma: Emit an anomaly when |z| exceeds this (default 2.5)
//
//   5. Analysis
//      - migration_window_hours: How far back to correlate change events (24)
//      - likely_cause_window_hours: "Likely cause" classification bound (6)
//      - max_recommendations: Upper bound on recommendations per analysis (4)
//      - ai_confidence_threshold: Below this the low-confidence policy applies
//      - low_confidence_policy: "replace" | "blend"
//      - llm_timeout_seconds: Hard timeout on the LLM call (default 30)
//      - llm_max_retries: Bounded retry count for the LLM call (0 or 1)
//
//   6. LLM Provider
//      - provider: "gemini" | "ollama"
//      - gemini: model, temperature, max_tokens (api_key from GEMINI_API_KEY)
//      - ollama: base_url, model, temperature
//
//   7. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//      - app_log_path / audit_log_path: rotating file sinks (empty = stderr only)

// MetricSpec describes one configured metric stream the baseline engine
// knows how to calculate.
type MetricSpec struct {
	Name    string `json:"name" mapstructure:"name"`
	Column  string `json:"column" mapstructure:"column"`
	Table   string `json:"table" mapstructure:"table"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// Config contains all configuration fields.
type Config struct {
	Server struct {
		Host string
		Port int
	}

	Database struct {
		SQLitePath string
	}

	Baseline struct {
		LookbackDays          int
		CalculationMethod     string
		Metrics               []MetricSpec
		UseAIOptimization     bool
		AIConfidenceThreshold float64
	}

	Detection struct {
		ThresholdSigma float64
	}

	Analysis struct {
		MigrationWindowHours   int
		LikelyCauseWindowHours int
		MaxRecommendations     int
		AIConfidenceThreshold  float64
		LowConfidencePolicy    string // "replace" or "blend"
		LLMTimeoutSeconds      int
		LLMMaxRetries          int
	}

	LLM struct {
		Provider string
		Gemini   map[string]interface{}
		Ollama   map[string]interface{}
	}

	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads tunable settings.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a configuration manager reading from configPath.
func NewManager(configPath string) Manager {
	return &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
}

// NewManagerWithDefaults creates a manager with the default config path.
func NewManagerWithDefaults() Manager {
	return NewManager("/etc/driftwatch/config.yaml")
}
