package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

type stubQueue struct {
	sent    []string
	deleted []string
	err     error
}

func (s *stubQueue) Send(ctx context.Context, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	return nil, context.Canceled
}

func (s *stubQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.deleted = append(s.deleted, receiptHandle)
	return nil
}

func TestPublisherEnqueueInbound(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, logging.Default())

	ev := messaging.InboundEvent{
		PhoneNumberID: "1098765",
		Message: whatsappclient.Message{
			ID:   "wamid.IN1",
			From: "551187654321",
			Type: "text",
			Text: &whatsappclient.Text{Body: "Oi"},
		},
	}
	require.NoError(t, publisher.EnqueueInbound(context.Background(), ev))
	require.Len(t, queue.sent, 1)

	payload, err := decodePayload(queue.sent[0])
	require.NoError(t, err)
	assert.Equal(t, jobKindInbound, payload.Kind)
	assert.Equal(t, "wamid.IN1", payload.ID)
	assert.Equal(t, "Oi", payload.Inbound.Message.Text.Body)
	assert.False(t, payload.EnqueuedAt.IsZero())
}

func TestPublisherEnqueueStatus(t *testing.T) {
	queue := &stubQueue{}
	publisher := NewPublisher(queue, nil)

	ev := messaging.StatusEvent{PhoneNumberID: "1098765", Status: whatsappclient.Status{ID: "wamid.OUT1", Status: "read"}}
	require.NoError(t, publisher.EnqueueStatus(context.Background(), ev))

	payload, err := decodePayload(queue.sent[0])
	require.NoError(t, err)
	assert.Equal(t, jobKindStatus, payload.Kind)
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, "read", payload.Status.Status.Status)
}

func TestPublisherSendError(t *testing.T) {
	publisher := NewPublisher(&stubQueue{err: errors.New("throttled")}, nil)
	err := publisher.EnqueueStatus(context.Background(), messaging.StatusEvent{})
	assert.ErrorContains(t, err, "throttled")
}

func TestDecodePayloadRejectsIncompleteJobs(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"kind":"whatsapp.inbound.v1"}`,
		`{"kind":"whatsapp.status.v1"}`,
		`{"kind":"unknown","inbound":{}}`,
	} {
		_, err := decodePayload(body)
		assert.Error(t, err, body)
	}
}
