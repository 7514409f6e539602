package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/kayz/xenobot/internal/prompt"
)

var samplePayload = prompt.Payload{
	{Role: "system", Content: "be brief"},
	{Role: "user", Content: "hi"},
	{Role: "assistant", Content: "hello"},
	{Role: "user", Content: "how are you"},
}

func TestCanonicalProvider(t *testing.T) {
	tests := map[string]string{
		"":         "openai",
		" GPT ":    "openai",
		"claude":   "anthropic",
		"moonshot": "kimi",
		"deepseek": "deepseek",
	}
	for in, want := range tests {
		if got := CanonicalProvider(in); got != want {
			t.Fatalf("CanonicalProvider(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewProviderSelection(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{Type: "openai"}); err == nil {
		t.Fatalf("expected missing API key error")
	}
	if _, err := NewProvider(ProviderConfig{Type: "unheard-of", APIKey: "k"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}

	p, err := NewProvider(ProviderConfig{Type: "claude", APIKey: "k"})
	if err != nil {
		t.Fatalf("claude provider: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Fatalf("unexpected provider name %q", p.Name())
	}

	p, err = NewProvider(ProviderConfig{Type: "custom", APIKey: "k", BaseURL: "http://localhost:1234/v1"})
	if err != nil {
		t.Fatalf("custom base url provider: %v", err)
	}
	if p.Name() != "custom" {
		t.Fatalf("unexpected provider name %q", p.Name())
	}
}

func TestOpenAIMessagesFromPayloadMapsRoles(t *testing.T) {
	got := openAIMessagesFromPayload(samplePayload)
	wantRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleUser,
	}
	if len(got) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got))
	}
	for i, role := range wantRoles {
		if got[i].Role != role || got[i].Content != samplePayload[i].Content {
			t.Fatalf("message %d = %+v, want role %s content %q", i, got[i], role, samplePayload[i].Content)
		}
	}
}

func TestOpenAICompatGenerate(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  good  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompatProvider(OpenAICompatConfig{
		ProviderName: "openai",
		APIKey:       "sk-test",
		BaseURL:      srv.URL + "/v1",
		DefaultModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	got, err := p.Generate(context.Background(), samplePayload, ModelConfig{Temperature: 0.7, MaxTokens: 2000})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "  good  " {
		t.Fatalf("unexpected text %q", got)
	}
	if captured.Model != "gpt-4o-mini" || captured.MaxTokens != 2000 {
		t.Fatalf("unexpected request: model=%q max_tokens=%d", captured.Model, captured.MaxTokens)
	}
	if len(captured.Messages) != 4 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", captured.Messages)
	}
}

func TestOpenAICompatGenerateWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream exploded","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompatProvider(OpenAICompatConfig{ProviderName: "openai", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Generate(context.Background(), samplePayload, ModelConfig{Model: "m"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Provider != "openai" {
		t.Fatalf("expected GenerationError, got %T %v", err, err)
	}
}

func TestOpenAICompatGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAICompatProvider(OpenAICompatConfig{ProviderName: "openai", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.Generate(context.Background(), samplePayload, ModelConfig{Model: "m"})
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
}

func TestClaudeMessagesFromPayload(t *testing.T) {
	payload := prompt.Payload{
		{Role: "system", Content: "sys"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "user", Content: "one"},
		{Role: "user", Content: "two"},
	}

	got := claudeMessagesFromPayload(payload)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(got), got)
	}
	if got[0].Role != anthropic.RoleUser || got[1].Role != anthropic.RoleAssistant || got[2].Role != anthropic.RoleUser {
		t.Fatalf("unexpected roles: %s %s %s", got[0].Role, got[1].Role, got[2].Role)
	}
	if text := got[2].Content[0].GetText(); text != "one\n\ntwo" {
		t.Fatalf("consecutive user turns not merged: %q", text)
	}
}

func TestClaudeGenerate(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",` +
			`"content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := NewClaudeProvider(ClaudeConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	got, err := p.Generate(context.Background(), samplePayload, ModelConfig{Temperature: 0.5, MaxTokens: 100})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("unexpected text %q", got)
	}
	if captured["system"] != "be brief" {
		t.Fatalf("system prompt not forwarded: %#v", captured["system"])
	}
	if captured["model"] != claudeDefaultModel {
		t.Fatalf("default model not used: %#v", captured["model"])
	}
	if msgs, ok := captured["messages"].([]any); !ok || len(msgs) != 3 {
		t.Fatalf("unexpected messages: %#v", captured["messages"])
	}
}

func TestClaudeGenerateWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	p, err := NewClaudeProvider(ClaudeConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.Generate(context.Background(), samplePayload, ModelConfig{})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Provider != "anthropic" {
		t.Fatalf("expected GenerationError, got %T %v", err, err)
	}
}
