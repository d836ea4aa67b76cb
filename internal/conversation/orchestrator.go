package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

var tracer = otel.Tracer("realty.internal.conversation")

// HistoryReader returns prior messages of a conversation, oldest first.
type HistoryReader interface {
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int, excludeProviderID string) ([]messaging.HistoryMessage, error)
}

// ToolExecutor runs a tool call to completion.
type ToolExecutor interface {
	Execute(ctx context.Context, kind ToolKind, input json.RawMessage, scope ToolScope) (ToolOutcome, error)
}

// Turn is one inbound message the agent should answer.
type Turn struct {
	TenantID          uuid.UUID
	ContactID         uuid.UUID
	ConversationID    uuid.UUID
	Phone             string
	ProviderMessageID string
	Text              string
	ContactName       string
	AwaitingName      bool
}

// Reply is the agent's answer and the state it left the conversation in.
type Reply struct {
	Text        string
	State       ConversationState
	ProjectName string
	ToolCalled  bool
	Tool        ToolKind
	// Guarded is set when the prompt guard answered instead of the model.
	Guarded     bool
}

type OrchestratorConfig struct {
	ModelID      string
	HistoryLimit int
	MaxTokens    int32
	Temperature  float32
}

// Orchestrator runs the project-scoped, two-turn tool-calling loop.
type Orchestrator struct {
	llm      LLMClient
	contexts ContextStore
	projects ProjectLister
	history  HistoryReader
	tools    ToolExecutor
	cfg      OrchestratorConfig
	metrics  *metrics.InboxMetrics
	logger   *logging.Logger
}

func NewOrchestrator(llm LLMClient, contexts ContextStore, projects ProjectLister, history HistoryReader, tools ToolExecutor, cfg OrchestratorConfig, m *metrics.InboxMetrics, logger *logging.Logger) *Orchestrator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if contexts == nil {
		panic("conversation: context store cannot be nil")
	}
	if projects == nil {
		panic("conversation: project lister cannot be nil")
	}
	if history == nil {
		panic("conversation: history reader cannot be nil")
	}
	if tools == nil {
		panic("conversation: tool executor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 12
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	return &Orchestrator{
		llm:      llm,
		contexts: contexts,
		projects: projects,
		history:  history,
		tools:    tools,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Reply answers one turn. While no project is known it asks which project
// the contact means and never calls the model.
func (o *Orchestrator) Reply(ctx context.Context, turn Turn) (Reply, error) {
	ctx, span := tracer.Start(ctx, "conversation.reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("realty.tenant_id", turn.TenantID.String()),
		attribute.String("realty.conversation_id", turn.ConversationID.String()),
	)

	cc, err := o.contexts.Load(ctx, turn.TenantID, turn.Phone)
	if err != nil {
		span.RecordError(err)
		return Reply{}, err
	}
	projects, err := o.projects.List(ctx, turn.TenantID)
	if err != nil {
		span.RecordError(err)
		return Reply{}, err
	}

	if err := o.advance(ctx, &cc, turn.Text, projects); err != nil {
		span.RecordError(err)
		return Reply{}, err
	}
	if !cc.Ready() {
		return Reply{Text: ClarifyingPrompt(projects), State: cc.State}, nil
	}
	span.SetAttributes(attribute.String("realty.project", cc.ProjectName))

	scan := ScanInbound(turn.Text)
	if scan.Blocked {
		o.logger.Warn("inbound message blocked by prompt guard",
			"tenant_id", turn.TenantID,
			"conversation_id", turn.ConversationID,
			"reasons", scan.Reasons,
		)
		return Reply{Text: GuardedReply, State: cc.State, ProjectName: cc.ProjectName, Guarded: true}, nil
	}

	history, err := o.history.RecentMessages(ctx, turn.ConversationID, o.cfg.HistoryLimit, turn.ProviderMessageID)
	if err != nil {
		span.RecordError(err)
		return Reply{}, err
	}

	req := LLMRequest{
		Model:       o.cfg.ModelID,
		System:      buildSystemPrompt(cc.ProjectName, turn.ContactName, turn.AwaitingName),
		Messages:    historyToMessages(history, scan.Sanitized),
		Tools:       DeclaredTools(),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
	first, err := o.llm.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Reply{}, fmt.Errorf("conversation: first model turn: %w", err)
	}

	reply := Reply{State: cc.State, ProjectName: cc.ProjectName}
	if len(first.ToolCalls) == 0 {
		reply.Text = o.screen(turn.TenantID, first.Text, FallbackReply)
		return reply, nil
	}

	call := first.ToolCalls[0]
	reply.ToolCalled = true
	kind, err := ParseToolKind(call.Name)
	if err != nil {
		o.metrics.ObserveToolCall(call.Name, "unknown")
		o.logger.Warn("model requested unknown tool", "tenant_id", turn.TenantID, "tool", call.Name)
		reply.Text = FallbackReply
		return reply, nil
	}
	reply.Tool = kind

	scope := ToolScope{
		TenantID:        turn.TenantID,
		ContactID:       turn.ContactID,
		ConversationID:  turn.ConversationID,
		ProjectID:       cc.ProjectID,
		ProjectName:     cc.ProjectName,
		Phone:           turn.Phone,
		ContactName:     turn.ContactName,
		SourceMessageID: turn.ProviderMessageID,
	}
	outcome, err := o.tools.Execute(ctx, kind, call.Input, scope)
	if err != nil {
		span.RecordError(err)
		o.logger.Error("tool execution failed", "tenant_id", turn.TenantID, "tool", kind.String(), "error", err)
		reply.Text = FallbackReply
		return reply, nil
	}
	if outcome.Final {
		reply.Text = outcome.Confirmation
		return reply, nil
	}

	req.Messages = append(req.Messages,
		ChatMessage{Role: ChatRoleAssistant, Content: first.Text, ToolCalls: []ToolCall{call}},
		ChatMessage{Role: ChatRoleUser, ToolResults: []ToolResult{{CallID: call.ID, Name: call.Name, Content: outcome.Result}}},
	)
	second, err := o.llm.Complete(ctx, req)
	switch {
	case err != nil:
		o.logger.Warn("second model turn failed, using tool confirmation", "tenant_id", turn.TenantID, "tool", kind.String(), "error", err)
		reply.Text = outcome.Confirmation
	case second.Text == "":
		reply.Text = outcome.Confirmation
	default:
		reply.Text = o.screen(turn.TenantID, second.Text, outcome.Confirmation)
	}
	return reply, nil
}

// screen runs the output guard over model text. Blocked or empty text is
// replaced by fallback.
func (o *Orchestrator) screen(tenantID uuid.UUID, text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	scan := ScanOutbound(text)
	if !scan.Leaked {
		return text
	}
	o.logger.Warn("model reply rewritten by output guard", "tenant_id", tenantID, "reasons", scan.Reasons)
	if scan.Sanitized == "" {
		return fallback
	}
	return scan.Sanitized
}

// advance applies the project transitions for this message.
func (o *Orchestrator) advance(ctx context.Context, cc *ConversationContext, text string, projects []Project) error {
	match, ok := MatchProjectName(text, projects)
	if !ok {
		return nil
	}
	switch {
	case cc.State == StateAwaitProjectContext:
		if err := cc.MatchProject(match); err != nil {
			return err
		}
	case cc.ProjectID != match.ID:
		if err := cc.SwitchProject(match); err != nil {
			return err
		}
	default:
		return nil
	}
	if err := o.contexts.Save(ctx, *cc); err != nil {
		return err
	}
	o.logger.Info("conversation project set",
		"tenant_id", cc.TenantID,
		"project", cc.ProjectName,
		"state", string(cc.State),
	)
	return nil
}

// historyToMessages converts stored history plus the current text into
// alternating user/assistant turns starting with the user.
func historyToMessages(history []messaging.HistoryMessage, current string) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(history)+1)
	appendTurn := func(role, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		if len(msgs) == 0 && role != ChatRoleUser {
			return
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n" + content
			return
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: content})
	}
	for _, h := range history {
		role := ChatRoleUser
		if h.Direction == messaging.DirectionOutbound {
			role = ChatRoleAssistant
		}
		appendTurn(role, h.Content)
	}
	appendTurn(ChatRoleUser, current)
	return msgs
}
