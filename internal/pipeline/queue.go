package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fankserver/meeting-transcriber/internal/jobs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Priority levels for queued requests
const (
	PriorityNormal = 0
	PriorityHigh   = 1
	PriorityUrgent = 2
)

// Request is one recording waiting to be transcribed
type Request struct {
	ID          string
	Title       string
	Audio       []byte
	Settings    jobs.Settings
	Priority    int
	SubmittedAt time.Time

	// Callbacks for progress tracking
	OnStart    func()
	OnProgress ProgressFunc
	OnComplete func(*Result)
	OnError    func(error)
}

// TranscriptionQueue runs requests on a fixed worker pool
type TranscriptionQueue struct {
	// Channels for different priorities
	urgentQueue chan *Request
	highQueue   chan *Request
	normalQueue chan *Request

	// Worker management
	workers  []*Worker
	workerWg sync.WaitGroup

	metrics *QueueMetrics

	ctx    context.Context
	cancel context.CancelFunc

	// Submit holds the read lock across its send; Stop takes the write lock
	// so no request lands after the final drain
	submitMu sync.RWMutex
	stopped  bool

	config QueueConfig
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	WorkerCount    int
	QueueSize      int
	SubmitTimeout  time.Duration
	ProcessTimeout time.Duration
}

// DefaultQueueConfig returns default configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:    2,
		QueueSize:      100,
		SubmitTimeout:  100 * time.Millisecond,
		ProcessTimeout: 10 * time.Minute,
	}
}

// QueueMetrics tracks queue performance
type QueueMetrics struct {
	RequestsQueued     int64
	RequestsProcessed  int64
	RequestsFailed     int64
	TotalProcessTime   int64 // in milliseconds
	AverageProcessTime int64 // in milliseconds
	CurrentQueueDepth  int32
	ActiveWorkers      int32
}

// NewTranscriptionQueue creates a new transcription queue
func NewTranscriptionQueue(config QueueConfig) *TranscriptionQueue {
	defaults := DefaultQueueConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize < 4 {
		config.QueueSize = defaults.QueueSize
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = defaults.SubmitTimeout
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TranscriptionQueue{
		urgentQueue: make(chan *Request, config.QueueSize/4),
		highQueue:   make(chan *Request, config.QueueSize/4),
		normalQueue: make(chan *Request, config.QueueSize/2),
		workers:     make([]*Worker, 0, config.WorkerCount),
		metrics:     &QueueMetrics{},
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
	}
}

// Start begins processing with worker pool
func (q *TranscriptionQueue) Start(orchestrator *Orchestrator) {
	for i := 0; i < q.config.WorkerCount; i++ {
		worker := NewWorker(i, q, orchestrator, q.config)
		q.workers = append(q.workers, worker)

		q.workerWg.Add(1)
		go func(w *Worker) {
			defer q.workerWg.Done()
			w.Run(q.ctx)
		}(worker)
	}

	logrus.WithField("workers", q.config.WorkerCount).Info("Transcription queue started")
}

// Stop cancels in-flight requests, waits for the workers and rejects
// everything still queued with ErrQueueStopped
func (q *TranscriptionQueue) Stop() {
	logrus.Info("Stopping transcription queue...")

	q.cancel()
	q.submitMu.Lock()
	q.stopped = true
	q.submitMu.Unlock()
	q.workerWg.Wait()

	for _, ch := range []chan *Request{q.urgentQueue, q.highQueue, q.normalQueue} {
		for {
			select {
			case req := <-ch:
				atomic.AddInt32(&q.metrics.CurrentQueueDepth, -1)
				if req.OnError != nil {
					req.OnError(ErrQueueStopped)
				}
				continue
			default:
			}
			break
		}
	}

	logrus.Info("Transcription queue stopped")
}

// Submit adds a request to the queue matching its priority. A request that
// Submit accepts always ends in exactly one OnComplete or OnError call.
func (q *TranscriptionQueue) Submit(req *Request) error {
	if len(req.Audio) == 0 {
		return ErrEmptyAudio
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	err := q.enqueue(req)
	if errors.Is(err, ErrQueueFull) && req.OnError != nil {
		req.OnError(ErrQueueFull)
	}
	return err
}

func (q *TranscriptionQueue) enqueue(req *Request) error {
	q.submitMu.RLock()
	defer q.submitMu.RUnlock()

	if q.stopped || q.ctx.Err() != nil {
		return ErrQueueStopped
	}

	atomic.AddInt64(&q.metrics.RequestsQueued, 1)
	atomic.AddInt32(&q.metrics.CurrentQueueDepth, 1)

	var targetQueue chan *Request
	switch req.Priority {
	case PriorityUrgent:
		targetQueue = q.urgentQueue
	case PriorityHigh:
		targetQueue = q.highQueue
	default:
		targetQueue = q.normalQueue
	}

	timer := time.NewTimer(q.config.SubmitTimeout)
	defer timer.Stop()

	select {
	case targetQueue <- req:
		logrus.WithFields(logrus.Fields{
			"queue_id": req.ID,
			"title":    req.Title,
			"bytes":    len(req.Audio),
			"priority": req.Priority,
		}).Debug("Request queued for transcription")
		return nil

	case <-timer.C:
		atomic.AddInt32(&q.metrics.CurrentQueueDepth, -1)
		atomic.AddInt64(&q.metrics.RequestsFailed, 1)

		logrus.WithField("queue_id", req.ID).Warn("Queue full, request rejected")
		return ErrQueueFull

	case <-q.ctx.Done():
		atomic.AddInt32(&q.metrics.CurrentQueueDepth, -1)
		return ErrQueueStopped
	}
}

// GetMetrics returns current queue metrics
func (q *TranscriptionQueue) GetMetrics() QueueMetrics {
	metrics := QueueMetrics{
		RequestsQueued:    atomic.LoadInt64(&q.metrics.RequestsQueued),
		RequestsProcessed: atomic.LoadInt64(&q.metrics.RequestsProcessed),
		RequestsFailed:    atomic.LoadInt64(&q.metrics.RequestsFailed),
		TotalProcessTime:  atomic.LoadInt64(&q.metrics.TotalProcessTime),
		CurrentQueueDepth: atomic.LoadInt32(&q.metrics.CurrentQueueDepth),
		ActiveWorkers:     atomic.LoadInt32(&q.metrics.ActiveWorkers),
	}

	if done := metrics.RequestsProcessed + metrics.RequestsFailed; done > 0 {
		metrics.AverageProcessTime = metrics.TotalProcessTime / done
	}

	return metrics
}

// GetQueueDepth returns the number of requests waiting across all priorities
func (q *TranscriptionQueue) GetQueueDepth() int {
	return len(q.urgentQueue) + len(q.highQueue) + len(q.normalQueue)
}

// WorkerStatuses reports the state of every worker
func (q *TranscriptionQueue) WorkerStatuses() []WorkerStatus {
	statuses := make([]WorkerStatus, 0, len(q.workers))
	for _, w := range q.workers {
		statuses = append(statuses, w.GetStatus())
	}
	return statuses
}

// updateMetricsAfterProcess records one finished request. A request that
// ended in a placeholder counts as failed.
func (q *TranscriptionQueue) updateMetricsAfterProcess(processTime time.Duration, success bool) {
	atomic.AddInt32(&q.metrics.CurrentQueueDepth, -1)
	atomic.AddInt64(&q.metrics.TotalProcessTime, processTime.Milliseconds())

	if success {
		atomic.AddInt64(&q.metrics.RequestsProcessed, 1)
	} else {
		atomic.AddInt64(&q.metrics.RequestsFailed, 1)
	}
}
