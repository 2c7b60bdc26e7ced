package correction

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned when an edit is submitted after Close
var ErrQueueClosed = errors.New("correction queue is closed")

// Queue serializes edits against one Session. A single goroutine owns the
// session and applies submitted edits in arrival order.
type Queue struct {
	session *Session
	ops     chan queuedEdit
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

type queuedEdit struct {
	fn     func(*Session) error
	result chan error
}

// NewQueue starts the writer goroutine for session
func NewQueue(session *Session) *Queue {
	q := &Queue{
		session: session,
		ops:     make(chan queuedEdit),
		stopCh:  make(chan struct{}),
	}

	q.wg.Add(1)
	go q.run()
	return q
}

// Do applies fn to the session on the writer goroutine and waits for it.
// If ctx ends first Do returns ctx.Err(); an edit that was already accepted
// still runs to completion.
func (q *Queue) Do(ctx context.Context, fn func(*Session) error) error {
	edit := queuedEdit{fn: fn, result: make(chan error, 1)}

	select {
	case q.ops <- edit:
	case <-q.stopCh:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-edit.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine. Pending Do calls return ErrQueueClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.stopCh)
	})
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case edit := <-q.ops:
			edit.result <- q.apply(edit.fn)
		case <-q.stopCh:
			return
		}
	}
}

func (q *Queue) apply(fn func(*Session) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"correction_id": q.session.ID(),
				"panic":         r,
			}).Error("Correction edit panic")
			err = errors.New("correction edit panicked")
		}
	}()
	return fn(q.session)
}
