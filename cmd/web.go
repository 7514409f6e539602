package cmd

import (
	"github.com/spf13/cobra"
)

var webAddr string

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Run only the local web console",
	RunE:  runWeb,
}

func init() {
	rootCmd.AddCommand(webCmd)
	webCmd.Flags().StringVar(&webAddr, "addr", "", "Listen address (default: platforms.web.addr)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Platforms.Web.Enabled = true
	if webAddr != "" {
		cfg.Platforms.Web.Addr = webAddr
	}
	return serve(cmd.Context(), cfg, []string{"web"})
}
