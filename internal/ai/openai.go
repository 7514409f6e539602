package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/xenobot/internal/prompt"
)

// OpenAICompatProvider talks to any OpenAI-compatible chat completions API:
// OpenAI, DeepSeek, Kimi, Qwen, MiniMax, GLM, Gemini, Grok, SiliconFlow.
type OpenAICompatProvider struct {
	client       *openai.Client
	model        string
	providerName string
}

// OpenAICompatConfig holds configuration for an OpenAI-compatible provider
type OpenAICompatConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string
	DefaultURL   string // used when BaseURL is empty
	DefaultModel string // used when Model is empty
	HTTPClient   *http.Client
}

// NewOpenAICompatProvider creates a new OpenAI-compatible provider
func NewOpenAICompatProvider(cfg OpenAICompatConfig) (*OpenAICompatProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.DefaultURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required for provider %s", cfg.ProviderName)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = baseURL
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &OpenAICompatProvider{
		client:       openai.NewClientWithConfig(config),
		model:        resolveModel(cfg.Model, cfg.DefaultModel),
		providerName: cfg.ProviderName,
	}, nil
}

// Name returns the provider name
func (p *OpenAICompatProvider) Name() string {
	return p.providerName
}

// Generate sends the payload as a chat completion and returns the first choice.
func (p *OpenAICompatProvider) Generate(ctx context.Context, payload prompt.Payload, model ModelConfig) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       resolveModel(model.Model, p.model),
		Messages:    openAIMessagesFromPayload(payload),
		Temperature: model.Temperature,
		MaxTokens:   resolveMaxTokens(model.MaxTokens),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", generationError(p.providerName, err)
	}
	if len(resp.Choices) == 0 {
		return "", generationError(p.providerName, ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessagesFromPayload(payload prompt.Payload) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(payload))
	for _, msg := range payload {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

func openAIRole(role string) string {
	switch role {
	case prompt.RoleSystem:
		return openai.ChatMessageRoleSystem
	case "assistant":
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
