package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the document and query API. Uploads are processed in the
background, either in-process or through RabbitMQ when queue.amqp_url is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var servePort string

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer teardown(a)

	sub, stopIngest, err := a.Submitter(ctx)
	if err != nil {
		return err
	}
	defer stopIngest()

	port := a.Config.Server.Port
	if servePort != "" {
		port = servePort
	}
	return a.Server(sub).ListenAndServe(ctx, ":"+port)
}
