package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
)

type recordingHandler struct {
	mu       sync.Mutex
	inbound  []messaging.InboundEvent
	statuses []messaging.StatusEvent
	err      error
}

func (r *recordingHandler) HandleInbound(ctx context.Context, ev messaging.InboundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbound = append(r.inbound, ev)
	return r.err
}

func (r *recordingHandler) HandleStatus(ctx context.Context, ev messaging.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ev)
	return r.err
}

func inboundBody(t *testing.T, id string) string {
	t.Helper()
	ev := messaging.InboundEvent{Message: whatsappclient.Message{ID: id, From: "551187654321", Type: "text"}}
	_, body, err := encodePayload(queuePayload{ID: id, Kind: jobKindInbound, Inbound: &ev})
	require.NoError(t, err)
	return body
}

func TestWorkerDeletesAfterSuccess(t *testing.T) {
	queue := &stubQueue{}
	handler := &recordingHandler{}
	w := NewWorker(handler, queue, nil)

	w.handleMessage(context.Background(), queueMessage{ID: "1", Body: inboundBody(t, "wamid.A"), ReceiptHandle: "rh-1"})

	require.Len(t, handler.inbound, 1)
	assert.Equal(t, "wamid.A", handler.inbound[0].Message.ID)
	assert.Equal(t, []string{"rh-1"}, queue.deleted)
}

func TestWorkerLeavesFailedJobsForRedelivery(t *testing.T) {
	queue := &stubQueue{}
	handler := &recordingHandler{err: errors.New("db down")}
	w := NewWorker(handler, queue, nil)

	w.handleMessage(context.Background(), queueMessage{ID: "1", Body: inboundBody(t, "wamid.A"), ReceiptHandle: "rh-1"})

	assert.Len(t, handler.inbound, 1)
	assert.Empty(t, queue.deleted)
}

func TestWorkerDeletesUndecodableJobs(t *testing.T) {
	queue := &stubQueue{}
	handler := &recordingHandler{}
	w := NewWorker(handler, queue, nil)

	w.handleMessage(context.Background(), queueMessage{ID: "1", Body: "{garbage", ReceiptHandle: "rh-bad"})

	assert.Empty(t, handler.inbound)
	assert.Equal(t, []string{"rh-bad"}, queue.deleted)
}

func TestWorkerOptionsClamp(t *testing.T) {
	w := NewWorker(&recordingHandler{}, &stubQueue{}, nil,
		WithWorkerCount(4),
		WithReceiveWaitSeconds(60),
		WithReceiveBatchSize(50),
		WithJobTimeout(time.Second),
	)
	assert.Equal(t, 4, w.cfg.workers)
	assert.Equal(t, maxWaitSeconds, w.cfg.receiveWaitSecs)
	assert.Equal(t, maxReceiveBatchSize, w.cfg.receiveBatchSize)
	assert.Equal(t, time.Second, w.cfg.jobTimeout)
}

func TestWorkerConsumesMemoryQueue(t *testing.T) {
	queue := NewMemoryQueue(8)
	handler := &recordingHandler{}
	publisher := NewPublisher(queue, nil)
	w := NewWorker(handler, queue, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.NoError(t, publisher.EnqueueStatus(ctx, messaging.StatusEvent{Status: whatsappclient.Status{ID: "wamid.OUT1", Status: "delivered"}}))
	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.statuses) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	w.Wait()
	assert.Empty(t, queue.inflight)
}

func TestWorkerLeaseOutlivesJobTimeout(t *testing.T) {
	queue := NewMemoryQueue(1)
	assert.GreaterOrEqual(t, queue.visibility, defaultJobTimeout)

	NewWorker(&recordingHandler{}, queue, nil, WithJobTimeout(5*time.Minute))
	assert.Equal(t, 5*time.Minute+deleteTimeoutSeconds*time.Second, queue.visibility)

	NewWorker(&recordingHandler{}, queue, nil, WithJobTimeout(time.Second))
	assert.Equal(t, 5*time.Minute+deleteTimeoutSeconds*time.Second, queue.visibility, "never lowered")

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	queue.now = func() time.Time { return clock }
	ctx := context.Background()
	require.NoError(t, queue.Send(ctx, "slow job"))
	first, err := queue.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clock = clock.Add(5 * time.Minute)
	again, err := queue.Receive(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, again, "still leased while the job may be running")
}
