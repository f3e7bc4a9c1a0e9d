package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/driftwatch/driftwatch.db"

	// Baseline defaults
	cfg.Baseline.LookbackDays = 30
	cfg.Baseline.CalculationMethod = "simple_stats"
	cfg.Baseline.UseAIOptimization = false
	cfg.Baseline.AIConfidenceThreshold = 0.75
	cfg.Baseline.Metrics = []MetricSpec{
		{Name: "error_rate", Column: "error_rate_pct", Table: "workload_metrics", Enabled: true},
		{Name: "cpu_utilization", Column: "cpu_utilization_pct", Table: "workload_metrics", Enabled: true},
		{Name: "memory_consumption", Column: "memory_consumption_mb", Table: "workload_metrics", Enabled: true},
		{Name: "execution_time", Column: "task_execution_time_ms", Table: "workload_metrics", Enabled: true},
	}

	// Detection defaults
	cfg.Detection.ThresholdSigma = 2.5

	// Analysis defaults
	cfg.Analysis.MigrationWindowHours = 24
	cfg.Analysis.LikelyCauseWindowHours = 6
	cfg.Analysis.MaxRecommendations = 4
	cfg.Analysis.AIConfidenceThreshold = 0.75
	cfg.Analysis.LowConfidencePolicy = "replace"
	cfg.Analysis.LLMTimeoutSeconds = 30
	cfg.Analysis.LLMMaxRetries = 1

	// LLM defaults
	cfg.LLM.Provider = "gemini"
	cfg.LLM.Gemini = map[string]interface{}{
		"model":       "gemini-1.5-pro",
		"temperature": 0.3,
		"max_tokens":  2048,
	}
	cfg.LLM.Ollama = map[string]interface{}{
		"base_url":    "http://localhost:11434",
		"model":       "llama3",
		"temperature": 0.3,
	}

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = ""
	cfg.Logging.AuditLogPath = ""

	return cfg
}
