package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fankserver/meeting-transcriber/internal/mcp"
	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve transcription and review tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Set up signal handling with context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	queue := pipeline.NewTranscriptionQueue(a.queueConfig())
	queue.Start(a.orchestrator)
	defer queue.Stop()

	server := mcp.NewServer(a.sessions, queue, cfg.Defaults, mcp.WithStore(a.store))
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("MCP server error")
		return err
	}

	logrus.WithField("metrics", queue.GetMetrics()).Info("Shutting down gracefully...")
	return nil
}
