package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kayz/xenobot/internal/ai"
	"github.com/kayz/xenobot/internal/config"
	"github.com/kayz/xenobot/internal/history"
	"github.com/kayz/xenobot/internal/prompt"
)

func TestSelectPlatforms(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		only    []string
		want    []string
		wantErr bool
	}{
		{name: "all configured", enabled: []string{"discord", "web"}, want: []string{"discord", "web"}},
		{name: "filter", enabled: []string{"discord", "web"}, only: []string{" Web "}, want: []string{"web"}},
		{name: "nothing configured", wantErr: true},
		{name: "filter unknown", enabled: []string{"discord"}, only: []string{"telegram"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectPlatforms(tt.enabled, tt.only)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPlatformsWeb(t *testing.T) {
	cfg := config.DefaultConfig()
	platforms, err := buildPlatforms(cfg, []string{"web"})
	if err != nil {
		t.Fatalf("buildPlatforms: %v", err)
	}
	if len(platforms) != 1 || platforms[0].Name() != "web" {
		t.Fatalf("unexpected platforms: %v", platforms)
	}
	if _, err := buildPlatforms(cfg, []string{"irc"}); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestNewAppWiresJournalAndSweep(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.APIKey = "sk-test"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")

	platforms, err := buildPlatforms(cfg, []string{"web"})
	if err != nil {
		t.Fatalf("buildPlatforms: %v", err)
	}
	a, err := newApp(cfg, platforms)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	if a.journal == nil {
		t.Fatalf("journal should be open")
	}
	if got := a.engine.History().Capacity(); got != cfg.Conversation.HistoryCapacity {
		t.Fatalf("sweep store capacity = %d, want %d", got, cfg.Conversation.HistoryCapacity)
	}
	if tasks := a.scheduler.Tasks(); len(tasks) != 1 || tasks[0] != sweepTask {
		t.Fatalf("unexpected scheduled tasks: %v", tasks)
	}
	if id, ok := a.router.Identity("web"); !ok || !id.IsSelf("xenobot") {
		t.Fatalf("web identity not registered")
	}
}

func TestNewAppRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Journal.Enabled = false
	if _, err := newApp(cfg, nil); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestConfigInitAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xenobot.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	}()

	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil || cfg.AI.Provider != "openai" || cfg.AI.Temperature != 0.7 {
		t.Fatalf("written config not loadable: %v %+v", err, cfg)
	}

	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	out.Reset()
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "xenobot "+Version) {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

// modelServer answers both chat-completions and messages requests and reports
// the model each request named.
func modelServer(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	models := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		models <- req.Model
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/messages":
			_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"ok"}],` +
				`"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, models
}

func TestProviderDefaultModelFromEnv(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", "claude-3-5-haiku-latest"},
		{"deepseek", "deepseek-chat"},
		{"openai", "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			srv, models := modelServer(t)
			t.Setenv("AI_PROVIDER", tt.provider)
			t.Setenv("AI_API_KEY", "key")
			t.Setenv("AI_BASE_URL", srv.URL+"/v1")
			t.Setenv("AI_MODEL", "")

			cfg := config.DefaultConfig()
			cfg.ApplyEnv()

			provider, err := ai.NewProvider(providerConfig(cfg))
			if err != nil {
				t.Fatalf("new provider: %v", err)
			}
			payload := prompt.Assemble("be brief", []history.Turn{{Role: history.RoleUser, Content: "hi"}})
			if _, err := provider.Generate(context.Background(), payload, modelConfig(cfg)); err != nil {
				t.Fatalf("generate: %v", err)
			}
			if got := <-models; got != tt.want {
				t.Fatalf("model sent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfiguredModelWins(t *testing.T) {
	srv, models := modelServer(t)
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("AI_API_KEY", "key")
	t.Setenv("AI_BASE_URL", srv.URL+"/v1")
	t.Setenv("AI_MODEL", "claude-sonnet-4-0")

	cfg := config.DefaultConfig()
	cfg.ApplyEnv()

	provider, err := ai.NewProvider(providerConfig(cfg))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	payload := prompt.Assemble("be brief", []history.Turn{{Role: history.RoleUser, Content: "hi"}})
	if _, err := provider.Generate(context.Background(), payload, modelConfig(cfg)); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := <-models; got != "claude-sonnet-4-0" {
		t.Fatalf("model sent = %q", got)
	}
}
