package inbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/crm"
	"github.com/wolfman30/realty-inbox/internal/media"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/notify"
	"github.com/wolfman30/realty-inbox/internal/tenancy"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

var tracer = otel.Tracer("realty.internal.inbox")

// MessageStore is the message persistence the processor drives.
type MessageStore interface {
	LookupTenantByPhoneNumberID(ctx context.Context, phoneNumberID string) (uuid.UUID, error)
	HasProviderMessage(ctx context.Context, tenantID uuid.UUID, providerMessageID string) (bool, error)
	InsertMessage(ctx context.Context, q messaging.Querier, rec messaging.MessageRecord) (uuid.UUID, bool, error)
	TouchConversation(ctx context.Context, conversationID, messageID uuid.UUID, inbound bool) error
	UpdateStatusByProviderID(ctx context.Context, tenantID uuid.UUID, providerMessageID, status string) (bool, error)
}

type ContactResolver interface {
	Resolve(ctx context.Context, in crm.Inbound) (*crm.Resolution, error)
	ClaimNewLead(ctx context.Context, contactID uuid.UUID) (bool, error)
}

type MediaIngester interface {
	Ingest(ctx context.Context, job media.Job) (*media.Result, error)
}

type Agent interface {
	Reply(ctx context.Context, turn conversation.Turn) (conversation.Reply, error)
}

type ReplySender interface {
	SendText(ctx context.Context, out messaging.Outbound) (messaging.SentMessage, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// Processor runs the inbound chain for one webhook event.
type Processor struct {
	messages      MessageStore
	resolver      ContactResolver
	media         MediaIngester
	agent         Agent
	sender        ReplySender
	events        EventDispatcher
	defaultTenant uuid.UUID
	logger        *logging.Logger
}

var _ EventHandler = (*Processor)(nil)

// ProcessorOption customizes the optional stages of the processor.
type ProcessorOption func(*Processor)

// WithMediaIngester enables media ingestion.
func WithMediaIngester(m MediaIngester) ProcessorOption {
	return func(p *Processor) { p.media = m }
}

// WithAgent enables automatic replies. Both agent and sender are required.
func WithAgent(agent Agent, sender ReplySender) ProcessorOption {
	return func(p *Processor) {
		p.agent = agent
		p.sender = sender
	}
}

// WithEventDispatcher enables lead notifications.
func WithEventDispatcher(d EventDispatcher) ProcessorOption {
	return func(p *Processor) { p.events = d }
}

// WithDefaultTenant routes events from unregistered numbers to tenantID.
func WithDefaultTenant(tenantID uuid.UUID) ProcessorOption {
	return func(p *Processor) { p.defaultTenant = tenantID }
}

func NewProcessor(messages MessageStore, resolver ContactResolver, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if messages == nil {
		panic("inbox: message store cannot be nil")
	}
	if resolver == nil {
		panic("inbox: resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{messages: messages, resolver: resolver, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleInbound persists one inbound message and runs the stages that follow.
// Errors up to and including the insert are returned so the queue redelivers
// the event. Once the row exists, later stage failures are logged only: a
// redelivery would stop at the dedup check anyway.
func (p *Processor) HandleInbound(ctx context.Context, ev messaging.InboundEvent) error {
	ctx, span := tracer.Start(ctx, "inbox.handle_inbound", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	msg := ev.Message
	span.SetAttributes(
		attribute.String("realty.provider_message_id", msg.ID),
		attribute.String("realty.message_type", msg.Type),
	)

	tenantID, ok, err := p.routeTenant(ctx, ev.PhoneNumberID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		p.logger.Warn("dropping message for unknown phone number id", "phone_number_id", ev.PhoneNumberID, "provider_message_id", msg.ID)
		return nil
	}
	ctx = tenancy.WithTenantID(ctx, tenantID.String())
	span.SetAttributes(attribute.String("realty.tenant_id", tenantID.String()))

	norm := messaging.Normalize(msg)

	seen, err := p.messages.HasProviderMessage(ctx, tenantID, msg.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if seen {
		p.logger.Debug("duplicate inbound message", "tenant_id", tenantID, "provider_message_id", msg.ID)
		return nil
	}

	res, err := p.resolver.Resolve(ctx, crm.Inbound{
		TenantID:    tenantID,
		From:        msg.From,
		ProfileName: ev.ProfileName,
		Text:        norm.Content,
		FreeText:    norm.FreeText,
		Referral:    referral(msg),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("inbox: resolve sender: %w", err)
	}

	content := norm.Content
	if norm.Media != nil {
		content = messaging.MediaPlaceholder
	}
	sentAt := messageTime(msg.Timestamp, ev.ReceivedAt)
	messageID, inserted, err := p.messages.InsertMessage(ctx, nil, messaging.MessageRecord{
		TenantID:          tenantID,
		ProviderMessageID: msg.ID,
		ConversationID:    res.ConversationID,
		ContactID:         res.ContactID,
		Sender:            res.Phone.Canonical,
		Receiver:          ev.PhoneNumberID,
		Direction:         messaging.DirectionInbound,
		Content:           content,
		Type:              norm.Type,
		RawPayload:        ev.Raw,
		SentAt:            sentAt,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !inserted {
		return nil
	}

	if err := p.messages.TouchConversation(ctx, res.ConversationID, messageID, true); err != nil {
		p.logger.Error("failed to touch conversation", "error", err, "tenant_id", tenantID, "conversation_id", res.ConversationID)
	}

	if norm.Media != nil {
		p.ingestMedia(ctx, tenantID, res, messageID, msg.ID, norm, sentAt)
	}

	p.notifyNewLead(ctx, tenantID, res, norm.Content, sentAt)

	if norm.Type.IsConversational() {
		p.reply(ctx, tenantID, ev, res, norm)
	}
	return nil
}

// HandleStatus applies one delivery receipt. Unknown numbers and unknown
// message ids are ignored.
func (p *Processor) HandleStatus(ctx context.Context, ev messaging.StatusEvent) error {
	ctx, span := tracer.Start(ctx, "inbox.handle_status", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	tenantID, ok, err := p.routeTenant(ctx, ev.PhoneNumberID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		return nil
	}
	updated, err := p.messages.UpdateStatusByProviderID(ctx, tenantID, ev.Status.ID, ev.Status.Status)
	if err != nil {
		span.RecordError(err)
		return err
	}
	p.logger.Debug("delivery status applied",
		"tenant_id", tenantID,
		"provider_message_id", ev.Status.ID,
		"status", ev.Status.Status,
		"updated", updated,
	)
	return nil
}

func (p *Processor) routeTenant(ctx context.Context, phoneNumberID string) (uuid.UUID, bool, error) {
	tenantID, err := p.messages.LookupTenantByPhoneNumberID(ctx, phoneNumberID)
	switch {
	case err == nil:
		return tenantID, true, nil
	case errors.Is(err, messaging.ErrTenantNotFound):
		if p.defaultTenant != uuid.Nil {
			return p.defaultTenant, true, nil
		}
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, err
	}
}

func (p *Processor) ingestMedia(ctx context.Context, tenantID uuid.UUID, res *crm.Resolution, messageID uuid.UUID, providerID string, norm messaging.Normalized, at time.Time) {
	if p.media == nil {
		return
	}
	_, err := p.media.Ingest(ctx, media.Job{
		TenantID:          tenantID,
		ContactID:         res.ContactID,
		MessageID:         messageID,
		ProviderMessageID: providerID,
		MediaID:           norm.Media.ID,
		MimeType:          norm.Media.MimeType,
		FileName:          norm.Media.FileName,
		Content:           norm.Content,
		ReceivedAt:        at,
	})
	if err != nil {
		p.logger.Error("media ingest failed, placeholder kept",
			"error", err,
			"tenant_id", tenantID,
			"message_id", messageID,
		)
	}
}

func (p *Processor) reply(ctx context.Context, tenantID uuid.UUID, ev messaging.InboundEvent, res *crm.Resolution, norm messaging.Normalized) {
	if p.agent == nil || p.sender == nil {
		return
	}
	if strings.TrimSpace(norm.Content) == "" {
		return
	}
	answer, err := p.agent.Reply(ctx, conversation.Turn{
		TenantID:          tenantID,
		ContactID:         res.ContactID,
		ConversationID:    res.ConversationID,
		Phone:             res.Phone.Canonical,
		ProviderMessageID: ev.Message.ID,
		Text:              norm.Content,
		ContactName:       res.ContactName,
		AwaitingName:      res.AwaitingName,
	})
	if err != nil {
		p.logger.Error("agent reply failed", "error", err, "tenant_id", tenantID, "conversation_id", res.ConversationID)
		return
	}
	if strings.TrimSpace(answer.Text) == "" {
		return
	}
	_, err = p.sender.SendText(ctx, messaging.Outbound{
		TenantID:       tenantID,
		ConversationID: res.ConversationID,
		ContactID:      res.ContactID,
		To:             ev.Message.From,
		PhoneNumberID:  ev.PhoneNumberID,
		Body:           answer.Text,
		Origin:         messaging.OriginAgent,
	})
	if err != nil {
		p.logger.Error("failed to send agent reply", "error", err, "tenant_id", tenantID, "conversation_id", res.ConversationID)
	}
}

// notifyNewLead fires new_lead for the first stored message of a lead. The
// claim lives on the contact row, so a lead created on a delivery whose insert
// failed is still announced when the redelivery stores the message. A failed
// claim is retried by the contact's next message.
func (p *Processor) notifyNewLead(ctx context.Context, tenantID uuid.UUID, res *crm.Resolution, summary string, at time.Time) {
	if p.events == nil {
		return
	}
	claimed, err := p.resolver.ClaimNewLead(ctx, res.ContactID)
	if err != nil {
		p.logger.Error("failed to claim new lead notification", "error", err, "tenant_id", tenantID, "contact_id", res.ContactID)
		return
	}
	if !claimed {
		return
	}
	p.events.Dispatch(ctx, notify.Event{
		Type:           notify.EventNewLead,
		TenantID:       tenantID,
		ContactID:      res.ContactID,
		ConversationID: res.ConversationID,
		Phone:          res.Phone.Canonical,
		ContactName:    res.ContactName,
		Summary:        summary,
		OccurredAt:     at,
	})
}

func referral(msg whatsappclient.Message) *crm.Referral {
	ref := msg.Referral
	if ref == nil {
		return nil
	}
	return &crm.Referral{
		SourceID:   ref.SourceID,
		SourceType: ref.SourceType,
		SourceURL:  ref.SourceURL,
		Headline:   ref.Headline,
		CtwaClid:   ref.CtwaClid,
	}
}

// messageTime parses the provider's unix-seconds timestamp.
func messageTime(ts string, fallback time.Time) time.Time {
	if secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	if fallback.IsZero() {
		return time.Now().UTC()
	}
	return fallback.UTC()
}
