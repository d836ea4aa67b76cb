package messaging

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

const defaultMaxWebhookBody = 1 << 20

// InboundEvent is one inbound message lifted out of a webhook envelope.
type InboundEvent struct {
	PhoneNumberID      string                 `json:"phone_number_id"`
	DisplayPhoneNumber string                 `json:"display_phone_number,omitempty"`
	ProfileName        string                 `json:"profile_name,omitempty"`
	Message            whatsappclient.Message `json:"message"`
	// Raw is the message object exactly as received.
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// StatusEvent is one delivery receipt lifted out of a webhook envelope.
type StatusEvent struct {
	PhoneNumberID string                `json:"phone_number_id"`
	Status        whatsappclient.Status `json:"status"`
}

// EventPublisher hands webhook events to the background pipeline.
type EventPublisher interface {
	EnqueueInbound(ctx context.Context, ev InboundEvent) error
	EnqueueStatus(ctx context.Context, ev StatusEvent) error
}

// WebhookConfig holds the verification secrets of the WhatsApp app.
type WebhookConfig struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checks when set.
	AppSecret    string
	MaxBodyBytes int64
}

// WebhookHandler serves the WhatsApp Cloud API webhook.
type WebhookHandler struct {
	cfg       WebhookConfig
	publisher EventPublisher
	metrics   *metrics.InboxMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(cfg WebhookConfig, publisher EventPublisher, m *metrics.InboxMetrics, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxWebhookBody
	}
	return &WebhookHandler{cfg: cfg, publisher: publisher, metrics: m, logger: logger, now: time.Now}
}

// Verify handles GET subscription checks. Both the hub.* parameters and
// their plain forms are accepted.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := firstNonEmpty(q.Get("hub.mode"), q.Get("mode"))
	token := firstNonEmpty(q.Get("hub.verify_token"), q.Get("verify_token"))
	challenge := firstNonEmpty(q.Get("hub.challenge"), q.Get("challenge"))

	if mode != "subscribe" || h.cfg.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.VerifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", "mode", mode)
		h.metrics.ObserveWebhook("verify", "forbidden")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	h.metrics.ObserveWebhook("verify", "ok")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive handles POST event deliveries. It always answers 200: malformed or
// unverifiable bodies are logged and dropped so the provider never disables
// the subscription.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "messaging.webhook.receive")
	defer span.End()
	defer h.ack(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		span.RecordError(err)
		h.logger.Error("failed to read webhook body", "error", err)
		h.metrics.ObserveWebhook("envelope", "unreadable")
		return
	}
	if h.cfg.AppSecret != "" {
		if err := whatsappclient.VerifySignature(h.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			span.RecordError(err)
			h.logger.Warn("invalid webhook signature", "error", err)
			h.metrics.ObserveWebhook("envelope", "invalid_signature")
			return
		}
	}

	var env whatsappclient.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		span.RecordError(err)
		h.logger.Warn("malformed webhook body", "error", err)
		h.metrics.ObserveWebhook("envelope", "malformed")
		return
	}
	raws := rawMessages(body)
	span.SetAttributes(attribute.Int("realty.webhook.entries", len(env.Entry)))

	for ei, entry := range env.Entry {
		for ci, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			value := change.Value
			for mi, msg := range value.Messages {
				if msg.ID == "" || msg.From == "" {
					h.metrics.ObserveWebhook("message", "incomplete")
					continue
				}
				ev := InboundEvent{
					PhoneNumberID:      value.Metadata.PhoneNumberID,
					DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
					ProfileName:        value.ProfileName(msg.From),
					Message:            msg,
					Raw:                raws.at(ei, ci, mi),
					ReceivedAt:         h.now().UTC(),
				}
				h.publishInbound(ctx, ev)
			}
			for _, st := range value.Statuses {
				if st.ID == "" || st.Status == "" {
					h.metrics.ObserveWebhook("status", "incomplete")
					continue
				}
				h.publishStatus(ctx, StatusEvent{PhoneNumberID: value.Metadata.PhoneNumberID, Status: st})
			}
		}
	}
}

func (h *WebhookHandler) publishInbound(ctx context.Context, ev InboundEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.EnqueueInbound(publishCtx, ev); err != nil {
		h.logger.Error("failed to enqueue inbound message",
			"error", err,
			"phone_number_id", ev.PhoneNumberID,
			"provider_message_id", ev.Message.ID,
		)
		h.metrics.ObserveWebhook("message", "enqueue_failed")
		return
	}
	h.metrics.ObserveWebhook("message", "accepted")
}

func (h *WebhookHandler) publishStatus(ctx context.Context, ev StatusEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.publisher.EnqueueStatus(publishCtx, ev); err != nil {
		h.logger.Error("failed to enqueue status update",
			"error", err,
			"provider_message_id", ev.Status.ID,
			"status", ev.Status.Status,
		)
		h.metrics.ObserveWebhook("status", "enqueue_failed")
		return
	}
	h.metrics.ObserveWebhook("status", "accepted")
}

func (h *WebhookHandler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"received"}`)
}

// HealthCheck returns a simple health check response.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rawIndex keeps each message object as received, addressed by its
// entry, change and message position.
type rawIndex [][][]json.RawMessage

func rawMessages(body []byte) rawIndex {
	var env struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Messages []json.RawMessage `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	idx := make(rawIndex, len(env.Entry))
	for i, e := range env.Entry {
		idx[i] = make([][]json.RawMessage, len(e.Changes))
		for j, c := range e.Changes {
			idx[i][j] = c.Value.Messages
		}
	}
	return idx
}

func (r rawIndex) at(entry, change, msg int) json.RawMessage {
	if entry >= len(r) || change >= len(r[entry]) || msg >= len(r[entry][change]) {
		return nil
	}
	return r[entry][change][msg]
}

