package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/realty-inbox/internal/messaging"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobKind string

const (
	jobKindInbound jobKind = "whatsapp.inbound.v1"
	jobKindStatus  jobKind = "whatsapp.status.v1"
)

type queuePayload struct {
	ID         string                  `json:"id"`
	Kind       jobKind                 `json:"kind"`
	Inbound    *messaging.InboundEvent `json:"inbound,omitempty"`
	Status     *messaging.StatusEvent  `json:"status,omitempty"`
	EnqueuedAt time.Time               `json:"enqueued_at"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("inbox: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("inbox: decode payload: %w", err)
	}
	switch payload.Kind {
	case jobKindInbound:
		if payload.Inbound == nil {
			return queuePayload{}, fmt.Errorf("inbox: %s job without event", payload.Kind)
		}
	case jobKindStatus:
		if payload.Status == nil {
			return queuePayload{}, fmt.Errorf("inbox: %s job without event", payload.Kind)
		}
	default:
		return queuePayload{}, fmt.Errorf("inbox: unknown job kind %q", payload.Kind)
	}
	return payload, nil
}
