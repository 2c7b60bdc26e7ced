package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>...",
	Short: "Transcribe recordings and store the speaker-labelled transcripts",
	Long: `Transcribe one or more recordings. Files are processed concurrently up to
the configured worker concurrency. Each transcript is stored in the database
and can be reviewed with the review command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

var (
	language    string
	sensitivity int
	quality     string
	reduced     bool
	export      bool
)

func init() {
	transcribeCmd.Flags().StringVarP(&language, "language", "l", "", "language code or auto (default from config)")
	transcribeCmd.Flags().IntVar(&sensitivity, "sensitivity", -1, "speaker sensitivity 0-100 (default from config)")
	transcribeCmd.Flags().StringVar(&quality, "quality", "", "transcription quality (default from config)")
	transcribeCmd.Flags().BoolVar(&reduced, "reduced", false, "request the reduced processing profile")
	transcribeCmd.Flags().BoolVar(&export, "export", false, "also export each transcript as JSON")

	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	settings, err := requestSettings(cfg.Defaults)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers.Concurrency)

	for _, path := range args {
		g.Go(func() error {
			return transcribeFile(gctx, a, path, settings, cmd)
		})
	}
	return g.Wait()
}

func requestSettings(defaults jobs.Settings) (jobs.Settings, error) {
	settings := defaults
	if language != "" {
		settings.Language = language
	}
	if sensitivity >= 0 {
		if sensitivity > 100 {
			return settings, fmt.Errorf("sensitivity must be between 0 and 100, got %d", sensitivity)
		}
		settings.Sensitivity = sensitivity
	}
	if quality != "" {
		settings.Quality = quality
	}
	if reduced {
		settings.Reduced = true
	}
	return settings, nil
}

func transcribeFile(ctx context.Context, a *app, path string, settings jobs.Settings, cmd *cobra.Command) error {
	// #nosec G304 - the user names the recordings to transcribe
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	title := filepath.Base(path)
	sessionID := a.sessions.CreateSession(title, settings.Language)
	logger := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"file":       title,
	})

	result := a.orchestrator.Transcribe(ctx, audio, settings, func(percent int, stage string) {
		_ = a.sessions.UpdateProgress(sessionID, percent, stage)
		logger.WithField("progress", percent).Info(stage)
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := a.sessions.CompleteTranscription(ctx, sessionID, result); err != nil {
		return fmt.Errorf("store transcript for %s: %w", path, err)
	}

	status := "ok"
	if result.Fallback {
		status = "failed"
		logger.WithError(result.Err).Warn("No transcript produced, stored placeholder")
	}

	line := fmt.Sprintf("%s\t%s\t%d segments\t%d relabeled\t%s", sessionID, title, len(result.Segments), result.Relabeled, status)
	if export {
		exported, err := a.sessions.ExportSession(sessionID)
		if err != nil {
			return fmt.Errorf("export %s: %w", path, err)
		}
		line += "\t" + exported
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
	return nil
}
