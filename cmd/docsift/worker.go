package main

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume ingestion jobs from RabbitMQ",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown(a)

	w, stop, err := a.Worker(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := w.Start(ctx); err != nil {
		return err
	}
	a.Log.Info("worker started", "queue", a.Config.Queue.QueueName)

	<-ctx.Done()
	a.Log.Info("worker stopping")
	return nil
}
