package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/config"
	"github.com/docsift/docsift/internal/app"
	"github.com/docsift/docsift/internal/logger"
)

var (
	configPath string
	logMode    string
)

var rootCmd = &cobra.Command{
	Use:   "docsift",
	Short: "Ask questions across your PDFs",
	Long: `docsift ingests PDF documents (with OCR for scanned pages), indexes them
into per-document vector stores and answers questions with cited,
per-document answers and cross-document themes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.docsift/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "log mode: dev or prod (overrides config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the logger for it
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating logger: %w", err)
	}
	return cfg, log, nil
}

// setup loads config and wires every component
func setup(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("error initializing docsift: %w", err)
	}
	return a, nil
}

func teardown(a *app.App) {
	a.Close()
	a.Log.Sync()
}
