package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftwatch/driftwatch/internal/llm/types"
)

func TestNewUnconfigured(t *testing.T) {
	a, err := New(&Config{Provider: ProviderNone})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if a.Provider() != "none" {
		t.Errorf("expected provider none, got %s", a.Provider())
	}

	_, err = a.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestNewGeminiWithoutKeyDegrades(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	a, err := New(&Config{Provider: ProviderGemini})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Missing credentials degrade to unconfigured rather than erroring out.
	if a.Provider() != "none" {
		t.Errorf("expected provider none, got %s", a.Provider())
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(&Config{Provider: "openai"})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestCompleteViaOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             "llama3",
			"message":           map[string]string{"role": "assistant", "content": "ok"},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        2,
		})
	}))
	defer server.Close()

	a, err := New(&Config{Provider: ProviderOllama, BaseURL: server.URL, Model: "llama3"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if a.Provider() != "ollama" || a.Model() != "llama3" {
		t.Errorf("unexpected identity: %s/%s", a.Provider(), a.Model())
	}

	resp, err := a.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "ok" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected 12 total tokens, got %d", resp.Usage.TotalTokens)
	}
}
