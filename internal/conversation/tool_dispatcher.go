package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/realty-inbox/internal/notify"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// ToolScope is who and what a tool call acts on.
type ToolScope struct {
	TenantID        uuid.UUID
	ContactID       uuid.UUID
	ConversationID  uuid.UUID
	ProjectID       uuid.UUID
	ProjectName     string
	Phone           string
	ContactName     string
	SourceMessageID string
}

// ToolOutcome is the result of one tool execution. Result goes back to the
// model; Confirmation is what the contact sees if the model cannot answer.
// Final outcomes skip the second model turn.
type ToolOutcome struct {
	Result       string
	Confirmation string
	Final        bool
}

// DocumentSearcher runs project-scoped retrieval.
type DocumentSearcher interface {
	Search(ctx context.Context, tenantID, projectID uuid.UUID, query string) (RetrievalResult, error)
}

// HumanFlagger marks a conversation for operator attention.
type HumanFlagger interface {
	SetNeedsHuman(ctx context.Context, conversationID uuid.UUID, needsHuman bool) error
}

// EventDispatcher schedules operator notifications.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

const (
	maxPassageRunes = 1200
	// maxFollowUpHours caps how far out the model may schedule a follow-up.
	maxFollowUpHours = 24 * 90
)

// NotFoundReply is sent when retrieval finds nothing relevant.
func NotFoundReply(projectName string) string {
	if projectName == "" {
		return "Não encontrei essa informação nos materiais oficiais. Vou confirmar com um corretor e te retorno, tudo bem?"
	}
	return fmt.Sprintf("Não encontrei essa informação nos materiais oficiais do %s. Vou confirmar com um corretor e te retorno, tudo bem?", projectName)
}

// DocumentsFoundReply stands in for the model's answer when passages were
// found but the second turn produced nothing usable.
func DocumentsFoundReply(projectName string) string {
	if projectName == "" {
		return "Encontrei essa informação nos materiais oficiais. Vou confirmar os detalhes com um corretor e te retorno, tudo bem?"
	}
	return fmt.Sprintf("Encontrei essa informação nos materiais oficiais do %s. Vou confirmar os detalhes com um corretor e te retorno, tudo bem?", projectName)
}

// ToolDispatcher executes tool calls synchronously.
type ToolDispatcher struct {
	tasks   TaskStore
	docs    DocumentSearcher
	humans  HumanFlagger
	events  EventDispatcher
	metrics *metrics.InboxMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewToolDispatcher(tasks TaskStore, docs DocumentSearcher, humans HumanFlagger, events EventDispatcher, m *metrics.InboxMetrics, logger *logging.Logger) *ToolDispatcher {
	if tasks == nil {
		panic("conversation: task store cannot be nil")
	}
	if docs == nil {
		panic("conversation: document searcher cannot be nil")
	}
	if humans == nil {
		panic("conversation: human flagger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolDispatcher{
		tasks:   tasks,
		docs:    docs,
		humans:  humans,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute runs one tool. Every ToolKind has a case; anything else is ErrUnknownTool.
func (d *ToolDispatcher) Execute(ctx context.Context, kind ToolKind, input json.RawMessage, scope ToolScope) (ToolOutcome, error) {
	var (
		out ToolOutcome
		err error
	)
	switch kind {
	case ToolCreateFollowUpTask:
		out, err = d.createFollowUp(ctx, input, scope)
	case ToolSearchProjectDocuments:
		out, err = d.searchDocuments(ctx, input, scope)
	case ToolRequestHumanHandoff:
		out, err = d.requestHandoff(ctx, input, scope)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownTool, kind)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.ObserveToolCall(kind.String(), status)
	return out, err
}

func (d *ToolDispatcher) createFollowUp(ctx context.Context, raw json.RawMessage, scope ToolScope) (ToolOutcome, error) {
	in, err := decodeInput[followUpInput](ToolCreateFollowUpTask, raw)
	if err != nil {
		return ToolOutcome{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ToolOutcome{}, fmt.Errorf("conversation: %s: title is required", ToolCreateFollowUpTask)
	}

	task := FollowUpTask{
		TenantID:        scope.TenantID,
		ContactID:       scope.ContactID,
		ConversationID:  scope.ConversationID,
		ProjectID:       scope.ProjectID,
		Title:           title,
		Notes:           strings.TrimSpace(in.Notes),
		SourceMessageID: scope.SourceMessageID,
	}
	var due string
	if in.DueInHours != nil && *in.DueInHours > 0 {
		hours := math.Min(math.Ceil(*in.DueInHours), maxFollowUpHours)
		at := d.now().UTC().Add(time.Duration(hours) * time.Hour)
		task.DueAt = &at
		due = fmt.Sprintf(" em até %d horas", int(hours))
	}

	id, err := d.tasks.CreateFollowUp(ctx, task)
	if err != nil {
		return ToolOutcome{}, err
	}
	d.logger.Info("follow-up task created",
		"tenant_id", scope.TenantID,
		"conversation_id", scope.ConversationID,
		"task_id", id,
	)
	return ToolOutcome{
		Result:       fmt.Sprintf("Tarefa criada com sucesso: %q%s.", title, due),
		Confirmation: fmt.Sprintf("Perfeito! Anotei aqui: %s. Nossa equipe vai entrar em contato%s.", title, due),
	}, nil
}

func (d *ToolDispatcher) searchDocuments(ctx context.Context, raw json.RawMessage, scope ToolScope) (ToolOutcome, error) {
	in, err := decodeInput[searchInput](ToolSearchProjectDocuments, raw)
	if err != nil {
		return ToolOutcome{}, err
	}
	res, err := d.docs.Search(ctx, scope.TenantID, scope.ProjectID, in.Query)
	if err != nil {
		return ToolOutcome{}, err
	}
	if !res.Found {
		notFound := NotFoundReply(scope.ProjectName)
		return ToolOutcome{Result: notFound, Confirmation: notFound, Final: true}, nil
	}

	var b strings.Builder
	for i, p := range res.Passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if p.Title != "" {
			b.WriteString("[" + p.Title + "] ")
		}
		b.WriteString(truncateRunes(p.Content, maxPassageRunes))
	}
	return ToolOutcome{
		Result:       "Trechos dos documentos oficiais:\n" + b.String(),
		Confirmation: DocumentsFoundReply(scope.ProjectName),
	}, nil
}

func (d *ToolDispatcher) requestHandoff(ctx context.Context, raw json.RawMessage, scope ToolScope) (ToolOutcome, error) {
	in, err := decodeInput[handoffInput](ToolRequestHumanHandoff, raw)
	if err != nil {
		return ToolOutcome{}, err
	}
	if err := d.humans.SetNeedsHuman(ctx, scope.ConversationID, true); err != nil {
		return ToolOutcome{}, err
	}
	if d.events != nil {
		d.events.Dispatch(ctx, notify.Event{
			Type:           notify.EventHandoffRequested,
			TenantID:       scope.TenantID,
			ContactID:      scope.ContactID,
			ConversationID: scope.ConversationID,
			Phone:          scope.Phone,
			ContactName:    scope.ContactName,
			Summary:        strings.TrimSpace(in.Reason),
			Attributes:     map[string]string{"empreendimento": scope.ProjectName},
		})
	}
	return ToolOutcome{
		Result:       "Atendimento transferido para um corretor humano.",
		Confirmation: "Certo! Vou chamar um dos nossos corretores para continuar seu atendimento por aqui.",
	}, nil
}

func truncateRunes(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}
