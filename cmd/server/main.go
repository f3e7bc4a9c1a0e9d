package main

// Package main is the entry point for the driftwatch server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and apply schema migrations
//   - Wire the baseline engine, anomaly analyzer, and LLM adapter
//   - Start the HTTP API server
//   - Implement graceful shutdown with context cancellation
//
// Startup degrades gracefully when no LLM credentials are configured: the
// service runs with the rule-based analysis path only.

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/analyzer"
	"github.com/driftwatch/driftwatch/internal/audit"
	"github.com/driftwatch/driftwatch/internal/baseline"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/llm/adapter"
	"github.com/driftwatch/driftwatch/internal/server"
	"github.com/driftwatch/driftwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/driftwatch/config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "driftwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	mgr := config.NewManager(configPath)
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := mgr.Get(ctx)

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	auditor, err := audit.NewLogger(&audit.Config{
		AuditLogPath: auditPath(cfg),
		AppLogPath:   appLogPath(cfg),
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer func() { _ = auditor.Close() }()

	llm, err := adapter.New(llmConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create LLM adapter: %w", err)
	}
	if llm.Provider() == string(adapter.ProviderNone) {
		logger.Warn("no LLM provider configured, all analyses will use the rule-based path")
	}

	var optimizer *baseline.Optimizer
	if cfg.Baseline.UseAIOptimization {
		optimizer = baseline.NewOptimizer(llm, cfg.Baseline.AIConfidenceThreshold,
			time.Duration(cfg.Analysis.LLMTimeoutSeconds)*time.Second, logger)
	}

	eng := baseline.NewEngine(cfg, st, optimizer, auditor)
	an := analyzer.NewAnalyzer(cfg, st, llm, auditor, logger)

	srv, err := server.New(cfg, st, eng, an, auditor, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("driftwatch started",
		zap.String("llm_provider", llm.Provider()),
		zap.Int("port", cfg.Server.Port),
		zap.String("sqlite_path", cfg.Database.SQLitePath),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-waitDone(srv):
		logger.Warn("server stopped unexpectedly")
	}

	if err := srv.Stop(); err != nil {
		logger.Warn("error stopping server", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func waitDone(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	return done
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Logging.Format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if err := zapCfg.Level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, err
	}
	return zapCfg.Build()
}

func auditPath(cfg *config.Config) string {
	if cfg.Logging.AuditLogPath != "" {
		return cfg.Logging.AuditLogPath
	}
	return "logs/audit.log"
}

func appLogPath(cfg *config.Config) string {
	if cfg.Logging.AppLogPath != "" {
		return cfg.Logging.AppLogPath
	}
	return "logs/app.log"
}

func llmConfig(cfg *config.Config) *adapter.Config {
	ac := &adapter.Config{Provider: adapter.ProviderType(cfg.LLM.Provider)}
	switch ac.Provider {
	case adapter.ProviderGemini:
		if key, ok := cfg.LLM.Gemini["api_key"].(string); ok {
			ac.APIKey = key
		}
		if model, ok := cfg.LLM.Gemini["model"].(string); ok {
			ac.Model = model
		}
	case adapter.ProviderOllama:
		if url, ok := cfg.LLM.Ollama["base_url"].(string); ok {
			ac.BaseURL = url
		}
		if model, ok := cfg.LLM.Ollama["model"].(string); ok {
			ac.Model = model
		}
	}
	return ac
}
