package feedback

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of event
type EventType string

const (
	// Job events
	EventJobCreated   EventType = "job.created"
	EventJobProgress  EventType = "job.progress"
	EventJobRetry     EventType = "job.retry"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"

	// Transcript events
	EventTranscriptCorrected EventType = "transcript.corrected"
	EventTranscriptCommitted EventType = "transcript.committed"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Timestamp time.Time
	RequestID string
	Data      interface{}
}

// JobCreatedData is published when an attempt is submitted
type JobCreatedData struct {
	JobID    string
	Attempt  int
	Language string
}

// JobProgressData is published on every progress report
type JobProgressData struct {
	JobID    string
	Attempt  int
	Progress int
	Stage    string
}

// JobRetryData is published when a failed attempt is retried
type JobRetryData struct {
	FailedJobID string
	Attempt     int
	Language    string
	Reason      string
}

// JobCompletedData is published once a request produced its transcript
type JobCompletedData struct {
	JobID    string
	Segments int
	Fallback bool
	Duration time.Duration
}

// JobFailedData is published for every failed attempt
type JobFailedData struct {
	JobID   string
	Attempt int
	Error   string
}

// TranscriptCorrectedData is published when speakers were relabeled
type TranscriptCorrectedData struct {
	Relabeled int
	Manual    bool
}

// TranscriptCommittedData is published when a reviewer commits a transcript
type TranscriptCommittedData struct {
	Segments int
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

type subscription struct {
	id        uint64
	eventType EventType
	all       bool
	handler   EventHandler
}

// EventBus manages event distribution
type EventBus struct {
	mu      sync.RWMutex
	subs    []subscription
	nextID  uint64
	buffer  chan Event
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup

	metricsMu sync.Mutex
	metrics   EventMetrics
}

// EventMetrics tracks event statistics
type EventMetrics struct {
	EventsPublished map[EventType]int64
	EventsDelivered int64
	EventsDropped   int64
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int) *EventBus {
	eb := &EventBus{
		buffer: make(chan Event, bufferSize),
		stopCh: make(chan struct{}),
		metrics: EventMetrics{
			EventsPublished: make(map[EventType]int64),
		},
	}

	eb.wg.Add(1)
	go eb.processEvents()

	return eb
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	return eb.add(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers a handler for all events
func (eb *EventBus) SubscribeAll(handler EventHandler) func() {
	return eb.add(subscription{all: true, handler: handler})
}

func (eb *EventBus) add(sub subscription) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	sub.id = eb.nextID
	eb.subs = append(eb.subs, sub)

	id := sub.id
	return func() { eb.remove(id) }
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, sub := range eb.subs {
		if sub.id == id {
			eb.subs = append(eb.subs[:i], eb.subs[i+1:]...)
			return
		}
	}
}

// Publish queues an event for delivery. When the buffer is full the event is
// dropped rather than blocking the publisher.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.stopped {
		return
	}

	eb.metricsMu.Lock()
	eb.metrics.EventsPublished[event.Type]++
	eb.metricsMu.Unlock()

	select {
	case eb.buffer <- event:
	default:
		eb.metricsMu.Lock()
		eb.metrics.EventsDropped++
		eb.metricsMu.Unlock()

		logrus.WithFields(logrus.Fields{
			"event_type": event.Type,
			"request_id": event.RequestID,
		}).Warn("Event dropped, buffer full")
	}
}

// processEvents delivers events in publish order on a single goroutine
func (eb *EventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.buffer:
			eb.deliverEvent(event)

		case <-eb.stopCh:
			for {
				select {
				case event := <-eb.buffer:
					eb.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) deliverEvent(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.all || sub.eventType == event.Type {
			handlers = append(handlers, sub.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		eb.safeCall(h, event)
	}
}

func (eb *EventBus) safeCall(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event_type": event.Type,
				"panic":      r,
			}).Error("Event handler panic")
		}
	}()

	h(event)

	eb.metricsMu.Lock()
	eb.metrics.EventsDelivered++
	eb.metricsMu.Unlock()
}

// Stop delivers queued events and shuts the bus down. Later publishes are
// ignored.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	eb.mu.Unlock()

	close(eb.stopCh)
	eb.wg.Wait()
}

// GetMetrics returns a copy of event bus metrics
func (eb *EventBus) GetMetrics() EventMetrics {
	eb.metricsMu.Lock()
	defer eb.metricsMu.Unlock()

	metrics := EventMetrics{
		EventsPublished: make(map[EventType]int64),
		EventsDelivered: eb.metrics.EventsDelivered,
		EventsDropped:   eb.metrics.EventsDropped,
	}
	for k, v := range eb.metrics.EventsPublished {
		metrics.EventsPublished[k] = v
	}
	return metrics
}

// PublishJobProgress publishes a progress event
func (eb *EventBus) PublishJobProgress(requestID string, data JobProgressData) {
	eb.Publish(Event{
		Type:      EventJobProgress,
		RequestID: requestID,
		Data:      data,
	})
}

// PublishJobRetry publishes a retry event
func (eb *EventBus) PublishJobRetry(requestID string, data JobRetryData) {
	eb.Publish(Event{
		Type:      EventJobRetry,
		RequestID: requestID,
		Data:      data,
	})
}

// PublishJobCompleted publishes a completion event
func (eb *EventBus) PublishJobCompleted(requestID string, data JobCompletedData) {
	eb.Publish(Event{
		Type:      EventJobCompleted,
		RequestID: requestID,
		Data:      data,
	})
}
