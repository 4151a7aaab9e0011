package main

import (
	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/client"
	"github.com/docsift/docsift/internal/ollama"
	"github.com/docsift/docsift/internal/tui"
)

var tuiAPI string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal UI against a running docsift server",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiAPI, "api", "", "docsift API base URL (default http://localhost:<server.port>)")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	base := tuiAPI
	if base == "" {
		base = "http://localhost:" + cfg.Server.Port
	}

	models := ollama.NewModelSelector(ollama.NewClient(cfg.Ollama.BaseURL))
	return tui.Run(client.New(base), models, cfg.Ollama.DefaultModel)
}
