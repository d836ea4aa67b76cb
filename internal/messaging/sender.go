package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

var tracer = otel.Tracer("realty.internal.messaging")

// ErrSenderNotConfigured is returned when no provider credentials were supplied.
var ErrSenderNotConfigured = errors.New("messaging: whatsapp sender not configured")

// Origins tag who produced an outbound message.
const (
	OriginAgent    = "agent"
	OriginOperator = "operator"
)

// TextSender is the provider call used to deliver a reply.
type TextSender interface {
	SendText(ctx context.Context, req whatsappclient.SendTextRequest) (*whatsappclient.SendResponse, error)
}

// OutboundWriter persists sent messages.
type OutboundWriter interface {
	InsertMessage(ctx context.Context, q Querier, rec MessageRecord) (uuid.UUID, bool, error)
	TouchConversation(ctx context.Context, conversationID, messageID uuid.UUID, inbound bool) error
}

// Outbound is one free-form text reply on an existing conversation.
type Outbound struct {
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	ContactID      uuid.UUID
	// To is the provider wa_id of the recipient.
	To string
	// PhoneNumberID is the business number sending the reply.
	PhoneNumberID    string
	Body             string
	ReplyToMessageID string
	Origin           string
}

// SentMessage identifies the stored outbound row.
type SentMessage struct {
	ID                uuid.UUID
	ProviderMessageID string
}

// Sender delivers text replies and records them as outbound messages.
type Sender struct {
	client  TextSender
	store   OutboundWriter
	metrics *metrics.InboxMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewSender wires the sender. A nil client yields a sender whose sends fail
// with ErrSenderNotConfigured.
func NewSender(client TextSender, store OutboundWriter, m *metrics.InboxMetrics, logger *logging.Logger) *Sender {
	if store == nil {
		panic("messaging: outbound store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{client: client, store: store, metrics: m, logger: logger, now: time.Now}
}

// SendText delivers out.Body and stores it keyed by the provider message id.
// Nothing is stored when the provider rejects the message.
func (s *Sender) SendText(ctx context.Context, out Outbound) (SentMessage, error) {
	ctx, span := tracer.Start(ctx, "messaging.send_text", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	origin := out.Origin
	if origin == "" {
		origin = OriginAgent
	}
	span.SetAttributes(
		attribute.String("realty.tenant_id", out.TenantID.String()),
		attribute.String("realty.conversation_id", out.ConversationID.String()),
		attribute.String("realty.origin", origin),
	)

	if s.client == nil {
		s.metrics.ObserveOutbound(origin, "not_configured")
		return SentMessage{}, ErrSenderNotConfigured
	}
	body := strings.TrimSpace(out.Body)
	if body == "" {
		return SentMessage{}, errors.New("messaging: outbound body is empty")
	}

	resp, err := s.client.SendText(ctx, whatsappclient.SendTextRequest{
		PhoneNumberID:    out.PhoneNumberID,
		To:               out.To,
		Body:             body,
		ReplyToMessageID: out.ReplyToMessageID,
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutbound(origin, "failed")
		return SentMessage{}, fmt.Errorf("messaging: send text: %w", err)
	}
	s.metrics.ObserveOutbound(origin, "sent")

	rec := MessageRecord{
		TenantID:          out.TenantID,
		ProviderMessageID: resp.MessageID,
		ConversationID:    out.ConversationID,
		ContactID:         out.ContactID,
		Sender:            out.PhoneNumberID,
		Receiver:          out.To,
		Direction:         DirectionOutbound,
		Content:           body,
		Type:              TypeText,
		SentAt:            s.now().UTC(),
	}
	id, _, err := s.store.InsertMessage(ctx, nil, rec)
	if err != nil {
		span.RecordError(err)
		return SentMessage{ProviderMessageID: resp.MessageID}, err
	}
	sent := SentMessage{ID: id, ProviderMessageID: resp.MessageID}
	if id == uuid.Nil {
		// Already stored by an earlier attempt.
		return sent, nil
	}
	if err := s.store.TouchConversation(ctx, out.ConversationID, id, false); err != nil {
		span.RecordError(err)
		return sent, err
	}
	s.logger.Info("outbound message sent",
		"tenant_id", out.TenantID,
		"conversation_id", out.ConversationID,
		"provider_message_id", resp.MessageID,
		"origin", origin,
	)
	return sent, nil
}
