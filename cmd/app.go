package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kayz/xenobot/internal/ai"
	"github.com/kayz/xenobot/internal/config"
	cronpkg "github.com/kayz/xenobot/internal/cron"
	"github.com/kayz/xenobot/internal/engine"
	"github.com/kayz/xenobot/internal/history"
	"github.com/kayz/xenobot/internal/instructions"
	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/persist"
	"github.com/kayz/xenobot/internal/platforms/discord"
	"github.com/kayz/xenobot/internal/platforms/telegram"
	"github.com/kayz/xenobot/internal/platforms/web"
	"github.com/kayz/xenobot/internal/router"
)

const sweepTask = "history-sweep"

// app is one running relay: platforms, engine and housekeeping.
type app struct {
	router    *router.Router
	engine    *engine.Engine
	journal   *persist.Store
	scheduler *cronpkg.Scheduler
}

// selectPlatforms intersects the configured platforms with an optional
// --platform filter.
func selectPlatforms(enabled, only []string) ([]string, error) {
	if len(only) == 0 {
		if len(enabled) == 0 {
			return nil, fmt.Errorf("no platform configured: set DISCORD_BOT_TOKEN, TELEGRAM_BOT_TOKEN or enable platforms.web")
		}
		return enabled, nil
	}

	configured := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		configured[name] = true
	}
	var out []string
	for _, name := range only {
		name = strings.ToLower(strings.TrimSpace(name))
		if !configured[name] {
			return nil, fmt.Errorf("platform %q is not configured", name)
		}
		out = append(out, name)
	}
	return out, nil
}

func buildPlatforms(cfg *config.Config, names []string) ([]router.Platform, error) {
	var out []router.Platform
	for _, name := range names {
		switch name {
		case "discord":
			p, err := discord.New(discord.Config{
				Token:           cfg.Platforms.Discord.Token,
				AddressInDM:     cfg.Platforms.Discord.AddressInDM,
				IgnoreOtherBots: cfg.Platforms.Discord.IgnoreOtherBots,
				GreetOnReady:    cfg.Platforms.Discord.GreetOnReady,
				Greeting:        cfg.Platforms.Discord.Greeting,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "telegram":
			p, err := telegram.New(telegram.Config{
				Token:            cfg.Platforms.Telegram.Token,
				Debug:            cfg.Platforms.Telegram.Debug,
				AddressInPrivate: cfg.Platforms.Telegram.AddressInPrivate,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "web":
			out = append(out, web.New(web.Config{Addr: cfg.Platforms.Web.Addr, ReplyTimeout: cfg.AI.Timeout + 30*time.Second}))
		default:
			return nil, fmt.Errorf("unknown platform: %s", name)
		}
	}
	return out, nil
}

func providerConfig(cfg *config.Config) ai.ProviderConfig {
	return ai.ProviderConfig{
		Type:    cfg.AI.Provider,
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}
}

func modelConfig(cfg *config.Config) ai.ModelConfig {
	return ai.ModelConfig{
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	}
}

func newApp(cfg *config.Config, platforms []router.Platform) (*app, error) {
	provider, err := ai.NewProvider(providerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}

	a := &app{router: router.New(), scheduler: cronpkg.NewScheduler()}

	composerOpts := instructions.Options{
		Default: cfg.Instructions.Default,
		Owners:  cfg.Instructions.Owners,
		Global:  strings.EqualFold(cfg.Instructions.ScopeMode, "global"),
	}
	engineCfg := engine.Config{
		History:     history.NewStore(cfg.Conversation.HistoryCapacity),
		Model:       modelConfig(cfg),
		Provider:    provider,
		Emitter:     a.router,
		Identities:  a.router,
		PromptReply: cfg.Conversation.PromptReply,
		EmptyReply:  cfg.Conversation.EmptyReply,
		ErrorReply:  cfg.Conversation.ErrorReply,
	}

	if cfg.Journal.Enabled {
		a.journal, err = persist.NewStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		composerOpts.Recorder = a.journal
		engineCfg.Journal = a.journal
	}
	engineCfg.Composer = instructions.NewComposer(composerOpts)

	a.engine, err = engine.New(engineCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	for _, p := range platforms {
		a.router.Register(p)
	}
	a.router.SetHandler(a.engine)

	if ttl := cfg.Conversation.IdleTTL; ttl > 0 && cfg.Conversation.SweepSchedule != "" {
		store := a.engine.History()
		err := a.scheduler.AddFunc(sweepTask, cfg.Conversation.SweepSchedule, func() {
			if n := store.PruneIdle(ttl); n > 0 {
				logger.Info("[Main] Dropped %d idle conversation histories", n)
			}
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}

	model := cfg.AI.Model
	if model == "" {
		model = "provider default"
	}
	logger.Info("[Main] Provider: %s, model: %s, history: %d turns, scope mode: %s",
		provider.Name(), model, cfg.Conversation.HistoryCapacity, cfg.Instructions.ScopeMode)
	return a, nil
}

// run starts every platform and blocks until ctx is cancelled. In-flight
// events are drained before the platforms go away.
func (a *app) run(ctx context.Context) error {
	if err := a.router.Start(ctx); err != nil {
		_ = a.router.Stop()
		a.close()
		return err
	}
	a.scheduler.Start()
	logger.Info("[Main] Running on: %s", strings.Join(a.router.Platforms(), ", "))

	<-ctx.Done()
	logger.Info("[Main] Shutting down...")

	a.engine.Wait()
	a.scheduler.Stop()
	err := a.router.Stop()
	a.close()
	return err
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn("[Main] Failed to close journal: %v", err)
		}
		a.journal = nil
	}
}
