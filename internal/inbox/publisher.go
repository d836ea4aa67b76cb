package inbox

import (
	"context"
	"fmt"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// Publisher enqueues webhook events for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

var _ messaging.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("inbox: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes one inbound message. The job id is the provider
// message id so redeliveries are easy to correlate in logs.
func (p *Publisher) EnqueueInbound(ctx context.Context, ev messaging.InboundEvent) error {
	return p.enqueue(ctx, queuePayload{ID: ev.Message.ID, Kind: jobKindInbound, Inbound: &ev})
}

// EnqueueStatus publishes one delivery receipt.
func (p *Publisher) EnqueueStatus(ctx context.Context, ev messaging.StatusEvent) error {
	return p.enqueue(ctx, queuePayload{Kind: jobKindStatus, Status: &ev})
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload) error {
	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("inbox: failed to enqueue job: %w", err)
	}

	p.logger.Debug("inbox job enqueued", "job_id", payload.ID, "kind", payload.Kind)
	return nil
}
