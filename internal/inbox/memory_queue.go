package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// A lease outlives the worker's job and delete timeouts so a slow event
	// is never handed to a second consumer mid-flight.
	defaultMemoryVisibility  = defaultJobTimeout + deleteTimeoutSeconds*time.Second
	defaultMemoryMaxReceives = 5
)

type inflight struct {
	msg      queueMessage
	deadline time.Time
}

// MemoryQueue is a queueClient backed by an in-memory buffered channel. It
// mimics SQS visibility: a received message that is not deleted in time is
// redelivered, up to a maximum receive count, then dropped.
type MemoryQueue struct {
	ch          chan queueMessage
	visibility  time.Duration
	maxReceives int
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]inflight
	receives map[string]int
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:          make(chan queueMessage, buffer),
		visibility:  defaultMemoryVisibility,
		maxReceives: defaultMemoryMaxReceives,
		now:         time.Now,
		inflight:    make(map[string]inflight),
		receives:    make(map[string]int),
	}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	msg := queueMessage{
		ID:   uuid.NewString(),
		Body: body,
	}
	return q.push(ctx, msg)
}

func (q *MemoryQueue) push(ctx context.Context, msg queueMessage) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	q.requeueExpired(ctx)

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if f, ok := q.inflight[receiptHandle]; ok {
		delete(q.inflight, receiptHandle)
		delete(q.receives, f.msg.ID)
	}
	return nil
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := []queueMessage{q.lease(first)}
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, q.lease(msg))
		default:
			return messages
		}
	}
	return messages
}

// coverJobs raises the visibility timeout to at least d.
func (q *MemoryQueue) coverJobs(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d > q.visibility {
		q.visibility = d
	}
}

func (q *MemoryQueue) lease(msg queueMessage) queueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg.ReceiptHandle = uuid.NewString()
	q.receives[msg.ID]++
	q.inflight[msg.ReceiptHandle] = inflight{msg: msg, deadline: q.now().Add(q.visibility)}
	return msg
}

func (q *MemoryQueue) requeueExpired(ctx context.Context) {
	q.mu.Lock()
	var due []queueMessage
	now := q.now()
	for handle, f := range q.inflight {
		if now.Before(f.deadline) {
			continue
		}
		delete(q.inflight, handle)
		if q.receives[f.msg.ID] >= q.maxReceives {
			delete(q.receives, f.msg.ID)
			continue
		}
		due = append(due, f.msg)
	}
	q.mu.Unlock()

	for _, msg := range due {
		_ = q.push(ctx, msg)
	}
}
