package main

import (
	"fmt"
	"strings"

	"github.com/fankserver/meeting-transcriber/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath      string
	logLevel        string
	transcriberType string
	dbPath          string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "meeting-transcriber",
	Short: "Transcribe recordings with speaker labels and review them",
	Long: `meeting-transcriber submits recordings to a speech-to-text backend, polls
the resulting jobs, formats speaker-labelled segments and smooths speaker
flicker. Transcripts can be reviewed and corrected in the terminal or over
MCP before they are committed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, loaded); err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg.LogLevel)
		return nil
	},
}

// applyFlags lets explicitly set persistent flags override the loaded
// configuration
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("transcriber") {
		c.Transcriber.Type = transcriberType
	}
	if flags.Changed("db") {
		c.Storage.DBPath = dbPath
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch strings.ToLower(level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&transcriberType, "transcriber", config.TranscriberMock, "transcriber backend: mock or assemblyai")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path of the transcript database")
}
