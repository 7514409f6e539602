package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathReadsConversationSection(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, ".xenobot.yaml")
	content := `ai:
  provider: deepseek
  model: deepseek-chat
  temperature: 0.2
conversation:
  history_capacity: 5
  idle_ttl: 2h
instructions:
  scope_mode: global
  owners:
    discord: "1001"
platforms:
  telegram:
    token: tg-token
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AI.Provider != "deepseek" || cfg.AI.Model != "deepseek-chat" {
		t.Fatalf("unexpected ai section: %#v", cfg.AI)
	}
	if cfg.AI.MaxTokens != 2000 {
		t.Fatalf("expected default max_tokens to survive, got %d", cfg.AI.MaxTokens)
	}
	if cfg.Conversation.HistoryCapacity != 5 {
		t.Fatalf("unexpected history capacity: %d", cfg.Conversation.HistoryCapacity)
	}
	if cfg.Conversation.IdleTTL != 2*time.Hour {
		t.Fatalf("unexpected idle ttl: %v", cfg.Conversation.IdleTTL)
	}
	if cfg.Instructions.ScopeMode != "global" {
		t.Fatalf("unexpected scope mode: %q", cfg.Instructions.ScopeMode)
	}
	if cfg.Instructions.Owners["discord"] != "1001" {
		t.Fatalf("unexpected owners: %#v", cfg.Instructions.Owners)
	}
	if cfg.Instructions.Default != DefaultInstructions {
		t.Fatalf("default instructions should be kept when omitted")
	}
	if got := cfg.EnabledPlatforms(); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("unexpected enabled platforms: %#v", got)
	}
}

func TestLoadFromPathMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Conversation.HistoryCapacity != 3 {
		t.Fatalf("expected default capacity 3, got %d", cfg.Conversation.HistoryCapacity)
	}
	if cfg.AI.Model != "" || cfg.AI.Temperature != 0.7 || cfg.AI.MaxTokens != 2000 {
		t.Fatalf("unexpected model defaults: %#v", cfg.AI)
	}
}

func TestApplyEnvOverridesCredentials(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "discord-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AI_API_KEY", "")
	t.Setenv("BOT_OWNER_ID", "42")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Platforms.Discord.Token != "discord-token" {
		t.Fatalf("discord token not applied: %q", cfg.Platforms.Discord.Token)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Fatalf("OPENAI_API_KEY fallback not applied: %q", cfg.AI.APIKey)
	}
	if cfg.Instructions.Owners["discord"] != "42" {
		t.Fatalf("BOT_OWNER_ID not applied: %#v", cfg.Instructions.Owners)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	cfg.Conversation.HistoryCapacity = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected capacity 0 to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Instructions.ScopeMode = "tenant"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown scope mode to be rejected")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".xenobot.yaml")
	cfg := DefaultConfig()
	cfg.Conversation.HistoryCapacity = 7

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Conversation.HistoryCapacity != 7 {
		t.Fatalf("capacity not persisted: %d", loaded.Conversation.HistoryCapacity)
	}
	if loaded.Conversation.IdleTTL != 24*time.Hour {
		t.Fatalf("idle ttl not persisted: %v", loaded.Conversation.IdleTTL)
	}
}
