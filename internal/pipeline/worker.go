package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Worker takes requests from the queue and runs them one at a time
type Worker struct {
	id           int
	queue        *TranscriptionQueue
	orchestrator *Orchestrator
	config       QueueConfig
	logger       *logrus.Entry

	active    atomic.Bool
	processed atomic.Int64
}

// NewWorker creates a new worker
func NewWorker(id int, queue *TranscriptionQueue, orchestrator *Orchestrator, config QueueConfig) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		orchestrator: orchestrator,
		config:       config,
		logger: logrus.WithFields(logrus.Fields{
			"worker_id": id,
		}),
	}
}

// Run starts the worker processing loop
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Worker started")
	defer w.logger.Info("Worker stopped")

	for {
		req := w.next(ctx)
		if req == nil {
			return
		}

		atomic.AddInt32(&w.queue.metrics.ActiveWorkers, 1)
		w.active.Store(true)
		w.process(ctx, req)
		w.active.Store(false)
		atomic.AddInt32(&w.queue.metrics.ActiveWorkers, -1)
	}
}

// next returns the oldest request of the highest non-empty priority, or nil
// once ctx is done
func (w *Worker) next(ctx context.Context) *Request {
	select {
	case req := <-w.queue.urgentQueue:
		return req
	default:
	}

	select {
	case req := <-w.queue.urgentQueue:
		return req
	case req := <-w.queue.highQueue:
		return req
	default:
	}

	select {
	case req := <-w.queue.urgentQueue:
		return req
	case req := <-w.queue.highQueue:
		return req
	case req := <-w.queue.normalQueue:
		return req
	case <-ctx.Done():
		return nil
	}
}

// process transcribes one request. The orchestrator always yields a
// transcript, so OnComplete fires even when it is a placeholder.
func (w *Worker) process(ctx context.Context, req *Request) {
	startTime := time.Now()

	logger := w.logger.WithFields(logrus.Fields{
		"queue_id": req.ID,
		"title":    req.Title,
		"priority": req.Priority,
		"waited":   startTime.Sub(req.SubmittedAt),
	})
	logger.Debug("Processing request")

	if req.OnStart != nil {
		req.OnStart()
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.ProcessTimeout)
	defer cancel()

	result := w.orchestrator.Transcribe(ctx, req.Audio, req.Settings, req.OnProgress)

	processTime := time.Since(startTime)
	w.queue.updateMetricsAfterProcess(processTime, !result.Fallback)
	w.processed.Add(1)

	if result.Fallback {
		logger.WithError(result.Err).WithField("process_time", processTime).Warn("Request ended with placeholder transcript")
	} else {
		logger.WithFields(logrus.Fields{
			"request_id":   result.RequestID,
			"process_time": processTime,
			"segments":     len(result.Segments),
		}).Info("Request transcribed successfully")
	}

	if req.OnComplete != nil {
		req.OnComplete(result)
	}
}

// GetStatus returns the worker's current status
func (w *Worker) GetStatus() WorkerStatus {
	return WorkerStatus{
		ID:        w.id,
		IsActive:  w.active.Load(),
		Processed: w.processed.Load(),
	}
}

// WorkerStatus represents the status of a worker
type WorkerStatus struct {
	ID        int
	IsActive  bool
	Processed int64
}
