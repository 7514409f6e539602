package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/kayz/xenobot/internal/prompt"
)

const claudeDefaultModel = "claude-3-5-haiku-latest"

// ClaudeProvider talks to the Anthropic Messages API.
type ClaudeProvider struct {
	client *anthropic.Client
	model  string
}

// ClaudeConfig holds Anthropic provider configuration
type ClaudeConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewClaudeProvider creates a new Anthropic provider
func NewClaudeProvider(cfg ClaudeConfig) (*ClaudeProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}

	return &ClaudeProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  resolveModel(cfg.Model, claudeDefaultModel),
	}, nil
}

// Name returns the provider name
func (p *ClaudeProvider) Name() string {
	return "anthropic"
}

// Generate sends the payload to the Messages API. The system entry travels in
// the dedicated system field.
func (p *ClaudeProvider) Generate(ctx context.Context, payload prompt.Payload, model ModelConfig) (string, error) {
	temperature := model.Temperature
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(resolveModel(model.Model, p.model)),
		System:      payload.System(),
		Messages:    claudeMessagesFromPayload(payload),
		MaxTokens:   resolveMaxTokens(model.MaxTokens),
		Temperature: &temperature,
	}

	resp, err := p.client.CreateMessages(ctx, req)
	if err != nil {
		return "", generationError(p.Name(), err)
	}

	if len(resp.Content) == 0 {
		return "", generationError(p.Name(), ErrNoChoices)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText {
			out.WriteString(block.GetText())
		}
	}
	return out.String(), nil
}

// claudeMessagesFromPayload merges consecutive same-role turns and makes sure
// the conversation opens with a user turn, as the Messages API requires.
func claudeMessagesFromPayload(payload prompt.Payload) []anthropic.Message {
	type turn struct {
		role  string
		parts []string
	}
	var turns []turn
	for _, msg := range payload.Conversation() {
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].parts = append(turns[n-1].parts, msg.Content)
			continue
		}
		turns = append(turns, turn{role: role, parts: []string{msg.Content}})
	}

	if len(turns) > 0 && turns[0].role == "assistant" {
		turns = append([]turn{{role: "user", parts: []string{"(continuing our conversation)"}}}, turns...)
	}

	messages := make([]anthropic.Message, 0, len(turns))
	for _, t := range turns {
		text := strings.Join(t.parts, "\n\n")
		if t.role == "assistant" {
			messages = append(messages, anthropic.NewAssistantTextMessage(text))
		} else {
			messages = append(messages, anthropic.NewUserTextMessage(text))
		}
	}
	return messages
}
