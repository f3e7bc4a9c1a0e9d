package adapter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/driftwatch/driftwatch/internal/llm/provider/gemini"
	"github.com/driftwatch/driftwatch/internal/llm/provider/ollama"
	"github.com/driftwatch/driftwatch/internal/llm/types"
	"github.com/driftwatch/driftwatch/internal/metrics"
)

// ProviderType identifies which LLM provider is configured
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderNone   ProviderType = "none" // No LLM configured
)

// ErrProviderNotConfigured is returned when an LLM operation is attempted
// without a configured provider. The analyzer treats this the same as any
// other completion failure and takes the rule-based path.
var ErrProviderNotConfigured = fmt.Errorf("LLM provider not configured")

// Config holds LLM provider configuration
type Config struct {
	Provider ProviderType `json:"provider"`
	APIKey   string       `json:"api_key"`  // For Gemini
	BaseURL  string       `json:"base_url"` // For Ollama
	Model    string       `json:"model"`    // Model name
}

type providerClient interface {
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)
	Model() string
}

// adapterImpl is the unified adapter implementation
type adapterImpl struct {
	provider ProviderType
	model    string
	client   providerClient
}

// New creates an adapter based on configuration.
//
// If no provider or no credentials are available, an unconfigured adapter is
// returned rather than an error. The service starts in degraded mode and every
// analysis takes the rule-based path until credentials are supplied.
func New(cfg *Config) (Adapter, error) {
	if cfg == nil {
		// Try environment variables as fallback
		cfg = &Config{
			Provider: ProviderType(os.Getenv("DRIFTWATCH_LLM_PROVIDER")),
			APIKey:   os.Getenv("GEMINI_API_KEY"),
			BaseURL:  os.Getenv("OLLAMA_BASE_URL"),
			Model:    os.Getenv("DRIFTWATCH_LLM_MODEL"),
		}
	}

	if cfg.Provider == "" || cfg.Provider == ProviderNone {
		return &adapterImpl{provider: ProviderNone}, nil
	}

	switch cfg.Provider {
	case ProviderGemini:
		if cfg.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
			return &adapterImpl{provider: ProviderNone}, nil
		}
		client, err := gemini.NewClient(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return &adapterImpl{provider: ProviderGemini, model: client.Model(), client: client}, nil

	case ProviderOllama:
		client := ollama.NewClient(cfg.BaseURL, cfg.Model)
		return &adapterImpl{provider: ProviderOllama, model: client.Model(), client: client}, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Complete delegates to the provider-specific client
func (a *adapterImpl) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	if a.provider == ProviderNone {
		return nil, ErrProviderNotConfigured
	}

	start := time.Now()
	resp, err := a.client.Complete(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, status).Inc()

	if resp != nil {
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "input").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "output").Add(float64(resp.Usage.CompletionTokens))
	}

	return resp, err
}

// Provider returns the configured provider name
func (a *adapterImpl) Provider() string {
	return string(a.provider)
}

// Model returns the configured model identifier
func (a *adapterImpl) Model() string {
	return a.model
}
