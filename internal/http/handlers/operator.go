package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/tenancy"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

const maxOperatorBody = 1 << 20

// ConversationStore is the slice of the message store the operator API touches.
type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, conversationID uuid.UUID) (*messaging.ConversationRecord, error)
	MarkConversationRead(ctx context.Context, tenantID, conversationID uuid.UUID) error
}

// ReplySender delivers an operator-authored reply.
type ReplySender interface {
	SendText(ctx context.Context, out messaging.Outbound) (messaging.SentMessage, error)
}

// DocumentIndexer embeds project material for retrieval.
type DocumentIndexer interface {
	AddDocuments(ctx context.Context, tenantID, projectID uuid.UUID, chunks []conversation.DocumentChunk) (int, error)
}

// OperatorHandler serves the authenticated operator API. Every route expects
// the tenant to be present in the request context.
type OperatorHandler struct {
	conversations ConversationStore
	sender        ReplySender
	documents     DocumentIndexer
	phoneNumberID string
	logger        *logging.Logger
}

// NewOperatorHandler wires the operator API. documents may be nil when no
// embedding model is configured; the documents route then answers 503.
func NewOperatorHandler(conversations ConversationStore, sender ReplySender, documents DocumentIndexer, phoneNumberID string, logger *logging.Logger) *OperatorHandler {
	if conversations == nil {
		panic("handlers: conversation store cannot be nil")
	}
	if sender == nil {
		panic("handlers: reply sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OperatorHandler{
		conversations: conversations,
		sender:        sender,
		documents:     documents,
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		logger:        logger,
	}
}

type sendMessageRequest struct {
	Body    string `json:"body"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// SendMessage handles POST /api/conversations/{id}/messages.
func (h *OperatorHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOperatorBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	conv, err := h.conversations.GetConversation(r.Context(), tenantID, conversationID)
	if err != nil {
		if errors.Is(err, messaging.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("operator send: load conversation failed", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	sent, err := h.sender.SendText(r.Context(), messaging.Outbound{
		TenantID:         tenantID,
		ConversationID:   conv.ID,
		ContactID:        conv.ContactID,
		To:               conv.WaID,
		PhoneNumberID:    h.phoneNumberID,
		Body:             body,
		ReplyToMessageID: strings.TrimSpace(req.ReplyTo),
		Origin:           messaging.OriginOperator,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, messaging.ErrSenderNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("operator send failed", "error", err, "conversation_id", conv.ID)
		http.Error(w, "failed to send message", status)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message_id":          sent.ID,
		"provider_message_id": sent.ProviderMessageID,
	})
}

// MarkRead handles POST /api/conversations/{id}/read.
func (h *OperatorHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	tenantID, conversationID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.conversations.MarkConversationRead(r.Context(), tenantID, conversationID); err != nil {
		if errors.Is(err, messaging.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("mark read failed", "error", err, "conversation_id", conversationID)
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addDocumentsRequest struct {
	Documents []conversation.DocumentChunk `json:"documents"`
}

// AddDocuments handles POST /api/projects/{id}/documents.
func (h *OperatorHandler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		http.Error(w, "document indexing not configured", http.StatusServiceUnavailable)
		return
	}
	tenantID, projectID, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req addDocumentsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOperatorBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		http.Error(w, "documents are required", http.StatusBadRequest)
		return
	}

	stored, err := h.documents.AddDocuments(r.Context(), tenantID, projectID, req.Documents)
	if err != nil {
		h.logger.Error("add documents failed", "error", err, "project_id", projectID)
		http.Error(w, "failed to index documents", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stored": stored})
}

// scope resolves the tenant from context and the {id} path parameter.
func (h *OperatorHandler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	rawTenant, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, err := uuid.Parse(rawTenant)
	if err != nil {
		http.Error(w, "invalid tenant", http.StatusForbidden)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
