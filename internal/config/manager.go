package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("DRIFTWATCH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults + env vars are enough to run.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and pushes reloaded configs to the channel.
// Only tunable settings (thresholds, LLM model/temperature) take effect on
// reload; server address and database path require a restart.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload re-reads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Baseline defaults
	m.viper.SetDefault("baseline.lookback_days", defaults.Baseline.LookbackDays)
	m.viper.SetDefault("baseline.calculation_method", defaults.Baseline.CalculationMethod)
	m.viper.SetDefault("baseline.use_ai_optimization", defaults.Baseline.UseAIOptimization)
	m.viper.SetDefault("baseline.ai_confidence_threshold", defaults.Baseline.AIConfidenceThreshold)

	// Detection defaults
	m.viper.SetDefault("detection.threshold_sigma", defaults.Detection.ThresholdSigma)

	// Analysis defaults
	m.viper.SetDefault("analysis.migration_window_hours", defaults.Analysis.MigrationWindowHours)
	m.viper.SetDefault("analysis.likely_cause_window_hours", defaults.Analysis.LikelyCauseWindowHours)
	m.viper.SetDefault("analysis.max_recommendations", defaults.Analysis.MaxRecommendations)
	m.viper.SetDefault("analysis.ai_confidence_threshold", defaults.Analysis.AIConfidenceThreshold)
	m.viper.SetDefault("analysis.low_confidence_policy", defaults.Analysis.LowConfidencePolicy)
	m.viper.SetDefault("analysis.llm_timeout_seconds", defaults.Analysis.LLMTimeoutSeconds)
	m.viper.SetDefault("analysis.llm_max_retries", defaults.Analysis.LLMMaxRetries)

	// LLM defaults
	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.gemini", defaults.LLM.Gemini)
	m.viper.SetDefault("llm.ollama", defaults.LLM.Ollama)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Baseline
	cfg.Baseline.LookbackDays = m.viper.GetInt("baseline.lookback_days")
	cfg.Baseline.CalculationMethod = m.viper.GetString("baseline.calculation_method")
	cfg.Baseline.UseAIOptimization = m.viper.GetBool("baseline.use_ai_optimization")
	cfg.Baseline.AIConfidenceThreshold = m.viper.GetFloat64("baseline.ai_confidence_threshold")
	if err := m.viper.UnmarshalKey("baseline.metrics", &cfg.Baseline.Metrics); err != nil {
		return fmt.Errorf("error unmarshaling baseline.metrics: %w", err)
	}
	if len(cfg.Baseline.Metrics) == 0 {
		cfg.Baseline.Metrics = DefaultConfig().Baseline.Metrics
	}

	// Detection
	cfg.Detection.ThresholdSigma = m.viper.GetFloat64("detection.threshold_sigma")

	// Analysis
	cfg.Analysis.MigrationWindowHours = m.viper.GetInt("analysis.migration_window_hours")
	cfg.Analysis.LikelyCauseWindowHours = m.viper.GetInt("analysis.likely_cause_window_hours")
	cfg.Analysis.MaxRecommendations = m.viper.GetInt("analysis.max_recommendations")
	cfg.Analysis.AIConfidenceThreshold = m.viper.GetFloat64("analysis.ai_confidence_threshold")
	cfg.Analysis.LowConfidencePolicy = m.viper.GetString("analysis.low_confidence_policy")
	cfg.Analysis.LLMTimeoutSeconds = m.viper.GetInt("analysis.llm_timeout_seconds")
	cfg.Analysis.LLMMaxRetries = m.viper.GetInt("analysis.llm_max_retries")

	// LLM
	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Gemini = m.viper.GetStringMap("llm.gemini")
	cfg.LLM.Ollama = m.viper.GetStringMap("llm.ollama")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperManager) applyEnvOverrides() {
	// Gemini API key never lives in the YAML file.
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		if m.config.LLM.Gemini == nil {
			m.config.LLM.Gemini = make(map[string]interface{})
		}
		m.config.LLM.Gemini["api_key"] = apiKey
	}

	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if m.config.LLM.Ollama == nil {
			m.config.LLM.Ollama = make(map[string]interface{})
		}
		m.config.LLM.Ollama["base_url"] = baseURL
	}

	if dbPath := os.Getenv("DRIFTWATCH_DATABASE_SQLITE_PATH"); dbPath != "" {
		m.config.Database.SQLitePath = dbPath
	}

	if portEnv := os.Getenv("DRIFTWATCH_SERVER_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("server.port")
	}
}
