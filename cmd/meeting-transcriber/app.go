package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fankserver/meeting-transcriber/internal/config"
	"github.com/fankserver/meeting-transcriber/internal/feedback"
	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/fankserver/meeting-transcriber/internal/pipeline"
	"github.com/fankserver/meeting-transcriber/internal/session"
	"github.com/fankserver/meeting-transcriber/internal/store"
	"github.com/fankserver/meeting-transcriber/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

// app holds the components shared by every command
type app struct {
	cfg          *config.Config
	store        *store.Store
	jobStore     jobs.Store
	events       *feedback.EventBus
	orchestrator *pipeline.Orchestrator
	sessions     *session.Manager
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	capability, err := newCapability(c)
	if err != nil {
		return nil, err
	}

	jobStore, err := newJobStore(ctx, c)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(c.Storage.DBPath); dir != "." {
		// #nosec G301 - database directory is owned by the user
		if err := os.MkdirAll(dir, 0750); err != nil {
			_ = jobStore.Close()
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}
	st, err := store.Open(c.Storage.DBPath)
	if err != nil {
		_ = jobStore.Close()
		return nil, err
	}

	events := feedback.NewEventBus(100)
	events.SubscribeAll(logEvent)

	orchestrator := pipeline.NewOrchestrator(capability, pipeline.Config{
		Poller: pipeline.PollerConfig{
			MaxAttempts: c.Poll.MaxAttempts,
			Interval:    c.Poll.Interval,
		},
		FallbackLanguage: c.FallbackLanguage,
	}, pipeline.WithJobStore(jobStore), pipeline.WithEventBus(events))

	sessions := session.NewManager(
		session.WithStore(st),
		session.WithEventBus(events),
		session.WithExportDir(c.Storage.ExportDir),
	)

	return &app{
		cfg:          c,
		store:        st,
		jobStore:     jobStore,
		events:       events,
		orchestrator: orchestrator,
		sessions:     sessions,
	}, nil
}

func (a *app) queueConfig() pipeline.QueueConfig {
	return pipeline.QueueConfig{
		WorkerCount:    a.cfg.Workers.Count,
		QueueSize:      a.cfg.Workers.QueueSize,
		ProcessTimeout: a.cfg.Workers.ProcessTimeout,
	}
}

func (a *app) Close() {
	a.sessions.Close()
	a.events.Stop()
	if err := a.jobStore.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close job store")
	}
	if err := a.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close transcript store")
	}
}

func newCapability(c *config.Config) (transcriber.Capability, error) {
	switch c.Transcriber.Type {
	case config.TranscriberAssemblyAI:
		backend, err := transcriber.NewAssemblyAI(transcriber.Config{
			APIKey:          c.Transcriber.APIKey,
			BaseURL:         c.Transcriber.BaseURL,
			RateLimitPerMin: c.Transcriber.RateLimitPerMin,
			HTTPTimeout:     c.Transcriber.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AssemblyAI transcriber: %w", err)
		}
		logrus.Info("Using AssemblyAI transcriber")
		return backend, nil
	default:
		logrus.Info("Using mock transcriber")
		return transcriber.NewMockCapability(), nil
	}
}

func newJobStore(ctx context.Context, c *config.Config) (jobs.Store, error) {
	if c.Redis.Addr == "" {
		logrus.Debug("Keeping job records in memory")
		return jobs.NewMemory(), nil
	}
	redisStore, err := jobs.NewRedis(ctx, jobs.RedisConfig{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.Redis.KeyPrefix,
		TTL:       c.Redis.TTL,
	})
	if err != nil {
		return nil, err
	}
	return redisStore, nil
}

func logEvent(event feedback.Event) {
	entry := logrus.WithFields(logrus.Fields{
		"event":      event.Type,
		"request_id": event.RequestID,
	})

	switch data := event.Data.(type) {
	case feedback.JobRetryData:
		entry.WithFields(logrus.Fields{
			"failed_job": data.FailedJobID,
			"attempt":    data.Attempt,
			"language":   data.Language,
			"reason":     data.Reason,
		}).Warn("Retrying transcription with relaxed settings")
	case feedback.JobFailedData:
		entry.WithFields(logrus.Fields{
			"job_id":  data.JobID,
			"attempt": data.Attempt,
		}).Warn("Transcription attempt failed: " + data.Error)
	case feedback.JobProgressData:
		entry.WithFields(logrus.Fields{
			"job_id":   data.JobID,
			"progress": data.Progress,
		}).Debug(data.Stage)
	default:
		entry.Debug("Event")
	}
}
