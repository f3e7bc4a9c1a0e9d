package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driftwatch/driftwatch/internal/llm/types"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := NewClient("", "")
	if err == nil {
		t.Fatal("expected error when no API key is available")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("test-key", "")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.Model() != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, client.Model())
	}
}

func TestComplete(t *testing.T) {
	var gotReq geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-pro:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected api key in query, got %q", r.URL.Query().Get("key"))
		}

		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{
					Content: geminiContent{
						Role:  "model",
						Parts: []geminiPart{{Text: `{"primary_cause": "deployment"}`}},
					},
					FinishReason: "STOP",
				},
			},
			UsageMetadata: geminiUsage{
				PromptTokenCount:     120,
				CandidatesTokenCount: 40,
				TotalTokenCount:      160,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.SetBaseURL(server.URL)

	resp, err := client.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: "You are a root cause analyst."},
			{Role: "user", Content: "Analyze this anomaly."},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != `{"primary_cause": "deployment"}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}

	if resp.Usage.TotalTokens != 160 {
		t.Errorf("expected 160 total tokens, got %d", resp.Usage.TotalTokens)
	}

	// System message becomes a top-level instruction, not a content entry.
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "You are a root cause analyst." {
		t.Error("system instruction not propagated")
	}

	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Role != "user" {
		t.Errorf("expected a single user content entry, got %+v", gotReq.Contents)
	}

	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.MaxOutputTokens != 512 {
		t.Error("generation config not propagated")
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.SetBaseURL(server.URL)

	_, err = client.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected API error body in message, got %v", err)
	}
}

func TestCompleteNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.SetBaseURL(server.URL)

	_, err = client.Complete(context.Background(), types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error when response has no candidates")
	}
}

func TestCompleteRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient("test-key", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.SetBaseURL(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Complete(ctx, types.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
}
