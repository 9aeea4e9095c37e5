package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/portfolio-globe/backend/pkg/ai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   *bool  `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestGenerateChat(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path got = %s, want /api/chat", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":" Sea \n"},"done":true,"prompt_eval_count":12,"eval_count":2}`))
	}))
	defer srv.Close()

	c, err := NewOllamaClient(NewOllamaClientParams{Model: "llama3", BaseURL: srv.URL, ApiKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.GenerateChat(context.Background(),
		ai.RelationMessages("ocean", "contains"),
		ai.WithSystemPrompts(ai.RelationSystemPrompt),
	)
	if err != nil {
		t.Fatalf("GenerateChat() err = %v", err)
	}
	if out != " Sea \n" {
		t.Fatalf("GenerateChat() got = %q", out)
	}
	if got.Model != "llama3" || got.Stream == nil || *got.Stream {
		t.Fatalf("request got = %+v, want non-streaming llama3", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Source: ocean, Relation: contains" {
		t.Fatalf("messages got = %+v", got.Messages)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization got = %q", auth)
	}
	if m := c.GetMetrics(); m.Requests != 1 || m.TotalTokens != 14 {
		t.Fatalf("GetMetrics() got = %+v", m)
	}
	c.ResetMetrics()
	if m := c.GetMetrics(); m.Requests != 0 {
		t.Fatalf("ResetMetrics() got = %+v", m)
	}
}

func TestGenerateChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	c, _ := NewOllamaClient(NewOllamaClientParams{Model: "missing", BaseURL: srv.URL})
	_, err := c.GenerateChat(context.Background(), ai.RelationMessages("a", "b"))

	var se *ai.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("GenerateChat() err = %v, want StatusError 404", err)
	}
}

func TestNoAuthorizationWithoutKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"message":{"role":"assistant","content":"x"},"done":true}`))
	}))
	defer srv.Close()

	c, _ := NewOllamaClient(NewOllamaClientParams{BaseURL: srv.URL})
	if _, err := c.GenerateChat(context.Background(), ai.RelationMessages("a", "b")); err != nil {
		t.Fatal(err)
	}
	if auth != "" {
		t.Fatalf("Authorization got = %q, want none", auth)
	}
}
