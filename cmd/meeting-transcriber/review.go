package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fankserver/meeting-transcriber/internal/review"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"
)

var reviewCmd = &cobra.Command{
	Use:   "review <transcript-id>",
	Short: "Correct speaker labels of a stored transcript in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Keep log lines from tearing the alternate screen
	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	final, err := tea.NewProgram(review.New(ctx, a.sessions, args[0]), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	m := final.(review.Model)
	if m.Committed() {
		fmt.Fprintln(cmd.OutOrStdout(), "Transcript committed")
	}
	if err := m.Err(); err != nil && !m.Committed() {
		return err
	}
	return nil
}
