package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/driftwatch/driftwatch/internal/llm/types"
)

// Package ollama provides the Ollama provider implementation.
//
// Responsibilities:
//   - Implement the adapter interface against the Ollama chat API
//   - Support any Ollama-hosted model (llama3, mistral, etc.)
//   - Approximate token accounting (Ollama reports eval counts)
//   - Error handling and connection management
//
// Key Advantage:
//   - Zero cost, runs entirely on the operator's machine
//   - Complete privacy, no data sent to external services
//
// Configuration:
//   - OLLAMA_BASE_URL: URL to Ollama instance (defaults to http://localhost:11434)
//   - OLLAMA_MODEL: Model name to use (defaults to llama3)

// Ollama API constants
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3"
	DefaultTimeout = 120 * time.Second
)

// Client implements the adapter interface for Ollama.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// ollamaMessage represents an Ollama chat message
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions holds model sampling options
type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaRequest represents a chat request
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaResponse represents a non-streaming chat response
type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// NewClient creates a new Ollama client
func NewClient(baseURL string, model string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = DefaultBaseURL
		}
	}

	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
		if model == "" {
			model = DefaultModel
		}
	}

	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Complete implements non-streaming completion against the chat API.
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	oReq := ollamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		oReq.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	reqBody, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &types.CompletionResponse{
		Content: resp.Message.Content,
		Usage: types.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// SetBaseURL overrides the Ollama base URL.  Used in tests.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }
