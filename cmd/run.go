package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayz/xenobot/internal/config"
)

var runPlatforms []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay on the configured platforms",
	Long: `Run the relay on every configured platform.

Credentials come from the config file or the environment:
  DISCORD_BOT_TOKEN, TELEGRAM_BOT_TOKEN, AI_API_KEY (or OPENAI_API_KEY),
  AI_PROVIDER, AI_BASE_URL, AI_MODEL, BOT_OWNER_ID

Examples:
  xenobot run
  xenobot run --platform discord`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runPlatforms, "platform", nil, "Only run these platforms (discord, telegram, web)")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return serve(cmd.Context(), cfg, runPlatforms)
}

func serve(parent context.Context, cfg *config.Config, only []string) error {
	names, err := selectPlatforms(cfg.EnabledPlatforms(), only)
	if err != nil {
		return err
	}
	platforms, err := buildPlatforms(cfg, names)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, platforms)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}
