package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

// DefaultInstructions is the persona sent with every request until a
// community or the owner sets an acting style.
const DefaultInstructions = "SYSTEM PROMPT: You are a helpful, roleplaying AI. Respond as instructed.\n" +
	"User will send messages. You must reply as if you are a specific character."

type Config struct {
	AI           AIConfig           `yaml:"ai"`
	Conversation ConversationConfig `yaml:"conversation"`
	Instructions InstructionsConfig `yaml:"instructions"`
	Platforms    PlatformConfig     `yaml:"platforms,omitempty"`
	Journal      JournalConfig      `yaml:"journal"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type AIConfig struct {
	Provider    string        `yaml:"provider,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Model       string        `yaml:"model,omitempty"` // empty selects the provider default
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ConversationConfig bounds per-user history and holds the fixed reply texts.
type ConversationConfig struct {
	HistoryCapacity int           `yaml:"history_capacity"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
	SweepSchedule   string        `yaml:"sweep_schedule,omitempty"`
	PromptReply     string        `yaml:"prompt_reply,omitempty"`
	EmptyReply      string        `yaml:"empty_reply,omitempty"`
	ErrorReply      string        `yaml:"error_reply,omitempty"`
}

type InstructionsConfig struct {
	Default   string `yaml:"default"`
	ScopeMode string `yaml:"scope_mode"` // "community" or "global"
	// Owners maps a platform name to the bot owner's user id on that platform.
	Owners map[string]string `yaml:"owners,omitempty"`
}

type PlatformConfig struct {
	Discord  DiscordConfig  `yaml:"discord,omitempty"`
	Telegram TelegramConfig `yaml:"telegram,omitempty"`
	Web      WebConfig      `yaml:"web,omitempty"`
}

type DiscordConfig struct {
	Token           string `yaml:"token,omitempty"`
	AddressInDM     bool   `yaml:"address_in_dm,omitempty"`
	IgnoreOtherBots bool   `yaml:"ignore_other_bots"`
	GreetOnReady    bool   `yaml:"greet_on_ready,omitempty"`
	Greeting        string `yaml:"greeting,omitempty"`
}

type TelegramConfig struct {
	Token            string `yaml:"token,omitempty"`
	Debug            bool   `yaml:"debug,omitempty"`
	AddressInPrivate bool   `yaml:"address_in_private,omitempty"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format,omitempty"` // "console" or "json"
	File   string `yaml:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   2000,
			Timeout:     60 * time.Second,
		},
		Conversation: ConversationConfig{
			HistoryCapacity: 3,
			IdleTTL:         24 * time.Hour,
			SweepSchedule:   "@every 10m",
		},
		Instructions: InstructionsConfig{
			Default:   DefaultInstructions,
			ScopeMode: "community",
			Owners:    map[string]string{},
		},
		Platforms: PlatformConfig{
			Discord: DiscordConfig{
				IgnoreOtherBots: true,
				Greeting:        "Hello!",
			},
			Web: WebConfig{
				Addr: "127.0.0.1:18080",
			},
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(ConfigDir(), "journal.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".xenobot")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".xenobot.yaml")
}

func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads the YAML file at path over the defaults. A missing file
// yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Instructions.Owners == nil {
		cfg.Instructions.Owners = map[string]string{}
	}

	return cfg, nil
}

func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overlays credentials from the environment. Environment values win
// over the file so secrets can stay out of it.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Platforms.Discord.Token = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Platforms.Telegram.Token = v
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("BOT_OWNER_ID"); v != "" {
		if c.Instructions.Owners == nil {
			c.Instructions.Owners = map[string]string{}
		}
		c.Instructions.Owners["discord"] = v
	}
}

// Validate reports settings the runtime cannot start with.
func (c *Config) Validate() error {
	if c.Conversation.HistoryCapacity < 1 {
		return fmt.Errorf("conversation.history_capacity must be at least 1, got %d", c.Conversation.HistoryCapacity)
	}
	switch strings.ToLower(c.Instructions.ScopeMode) {
	case "", "community", "global":
	default:
		return fmt.Errorf("instructions.scope_mode must be community or global, got %q", c.Instructions.ScopeMode)
	}
	if strings.TrimSpace(c.Instructions.Default) == "" {
		return fmt.Errorf("instructions.default must not be empty")
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.max_tokens must not be negative")
	}
	return nil
}

// EnabledPlatforms lists the adapters that have credentials or are switched on.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.Platforms.Discord.Token != "" {
		out = append(out, "discord")
	}
	if c.Platforms.Telegram.Token != "" {
		out = append(out, "telegram")
	}
	if c.Platforms.Web.Enabled {
		out = append(out, "web")
	}
	return out
}
