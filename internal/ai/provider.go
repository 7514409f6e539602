package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kayz/xenobot/internal/prompt"
)

// ModelConfig carries the fixed generation parameters chosen at startup.
type ModelConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Provider is a one-shot language-generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, payload prompt.Payload, model ModelConfig) (string, error)
}

// ErrNoChoices is returned when a backend answers without any candidate.
var ErrNoChoices = errors.New("backend returned no choices")

// GenerationError wraps every failure of a backend call.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationError(provider string, err error) error {
	return &GenerationError{Provider: provider, Err: err}
}

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Type    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

const defaultMaxTokens = 2000

var openAICompatDefaults = map[string]struct {
	baseURL string
	model   string
}{
	"openai":      {"https://api.openai.com/v1", "gpt-4o-mini"},
	"deepseek":    {"https://api.deepseek.com/v1", "deepseek-chat"},
	"kimi":        {"https://api.moonshot.cn/v1", "moonshot-v1-8k"},
	"qwen":        {"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
	"minimax":     {"https://api.minimax.chat/v1", "MiniMax-Text-01"},
	"zhipu":       {"https://open.bigmodel.cn/api/paas/v4", "glm-4-flash"},
	"gemini":      {"https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash"},
	"grok":        {"https://api.x.ai/v1", "grok-2-latest"},
	"siliconflow": {"https://api.siliconflow.cn/v1", "Qwen/Qwen2.5-72B-Instruct"},
}

var providerAliases = map[string]string{
	"gpt":      "openai",
	"chatgpt":  "openai",
	"moonshot": "kimi",
	"qianwen":  "qwen",
	"tongyi":   "qwen",
	"glm":      "zhipu",
	"google":   "gemini",
	"xai":      "grok",
	"claude":   "anthropic",
}

// CanonicalProvider resolves aliases to a provider type name.
func CanonicalProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "openai"
	}
	if canonical, ok := providerAliases[name]; ok {
		return canonical
	}
	return name
}

// NewProvider builds the backend named by cfg.Type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	name := CanonicalProvider(cfg.Type)
	httpClient := &http.Client{Timeout: cfg.Timeout}

	if name == "anthropic" {
		return NewClaudeProvider(ClaudeConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	}

	d, ok := openAICompatDefaults[name]
	if !ok && cfg.BaseURL == "" {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Type)
	}
	return NewOpenAICompatProvider(OpenAICompatConfig{
		ProviderName: name,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		DefaultURL:   d.baseURL,
		DefaultModel: d.model,
		HTTPClient:   httpClient,
	})
}

func resolveModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func resolveMaxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
