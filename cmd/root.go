package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/xenobot/internal/config"
	"github.com/kayz/xenobot/internal/logger"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "xenobot",
	Short: "xenobot conversational relay",
	Long: `xenobot answers chat messages that mention it or reply to it, using a
short per-user conversation history and a configurable acting style.

Modes:
  xenobot           Run every configured platform (default)
  xenobot run       Same as above, optionally limited with --platform
  xenobot web       Run only the local web console
  xenobot journal   Show recent journal entries`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runBot,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: .xenobot.yaml next to the executable)")
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.ConfigPath()
}

// loadConfig reads the config file, overlays the environment and applies the
// logging section. An explicit --log flag wins over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromPath(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var outputs []string
	if cfg.Logging.File != "" {
		outputs = append(outputs, cfg.Logging.File)
	}
	if err := logger.Init(cfg.Logging.Format, outputs); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if !cmd.Flags().Changed("log") && cfg.Logging.Level != "" {
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	return cfg, nil
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
