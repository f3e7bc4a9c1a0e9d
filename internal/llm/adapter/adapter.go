package adapter

import (
	"context"

	"github.com/driftwatch/driftwatch/internal/llm/types"
)

// Package adapter provides a unified interface for different LLM providers.
//
// Responsibilities:
//   - Abstract differences between LLM providers (Gemini, Ollama)
//   - Provide single interface for all LLM operations
//   - Normalize request/response formats across providers
//   - Token usage reporting for observability
//   - Error handling; callers own timeout and retry policy via context
//
// Supported Providers:
//   1. Gemini: gemini-1.5-pro, gemini-1.5-flash (hosted, API key required)
//   2. Ollama: Local models (llama3, mistral, etc.), zero cost
//
// The adapter never retries on its own. The analyzer wraps calls in a
// deadline context and decides whether a second attempt is worthwhile;
// stacking retry loops here would multiply worst-case latency.
//
// Integration Points:
//   - Root-Cause Analyzer: structured JSON analysis of anomalies
//   - Baseline Optimizer: calculation method recommendations

// Adapter defines the unified interface for LLM providers.
type Adapter interface {
	// Complete sends a prompt and returns a completion (non-streaming).
	// The context deadline bounds the call end to end.
	Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error)

	// Provider returns the provider name ("gemini" or "ollama").
	Provider() string

	// Model returns the configured model identifier.
	Model() string
}
