package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driftwatch/driftwatch/internal/llm/types"
)

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("OLLAMA_MODEL", "")

	client := NewClient("", "")

	if client.baseURL != DefaultBaseURL {
		t.Errorf("expected default base URL %s, got %s", DefaultBaseURL, client.baseURL)
	}
	if client.Model() != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, client.Model())
	}
}

func TestComplete(t *testing.T) {
	var gotReq ollamaRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		resp := ollamaResponse{
			Model:           "llama3",
			Message:         ollamaMessage{Role: "assistant", Content: `{"primary_cause": "migration"}`},
			Done:            true,
			PromptEvalCount: 200,
			EvalCount:       50,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3")

	resp, err := client.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: "You are a root cause analyst."},
			{Role: "user", Content: "Analyze this anomaly."},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != `{"primary_cause": "migration"}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}

	if resp.Usage.TotalTokens != 250 {
		t.Errorf("expected 250 total tokens, got %d", resp.Usage.TotalTokens)
	}

	if gotReq.Stream {
		t.Error("expected stream=false")
	}

	// Ollama keeps the system message inline in the conversation.
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system message inline, got %+v", gotReq.Messages)
	}

	if gotReq.Options == nil || gotReq.Options.NumPredict != 1024 {
		t.Error("sampling options not propagated")
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model 'llama3' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3")

	_, err := client.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected API error body in message, got %v", err)
	}
}

func TestCompleteRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "llama3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
}
