package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTool is returned for a tool name the agent never declared.
var ErrUnknownTool = errors.New("conversation: unknown tool")

// ToolKind is the closed set of tools the agent can run.
type ToolKind int

const (
	ToolCreateFollowUpTask ToolKind = iota + 1
	ToolSearchProjectDocuments
	ToolRequestHumanHandoff
)

// AllToolKinds lists every declared tool in declaration order.
var AllToolKinds = []ToolKind{
	ToolCreateFollowUpTask,
	ToolSearchProjectDocuments,
	ToolRequestHumanHandoff,
}

func (k ToolKind) String() string {
	switch k {
	case ToolCreateFollowUpTask:
		return "create_follow_up_task"
	case ToolSearchProjectDocuments:
		return "search_project_documents"
	case ToolRequestHumanHandoff:
		return "request_human_handoff"
	}
	return fmt.Sprintf("tool(%d)", int(k))
}

// ParseToolKind maps a model-provided tool name to its kind.
func ParseToolKind(name string) (ToolKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, k := range AllToolKinds {
		if k.String() == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// Spec returns the declaration sent to the model.
func (k ToolKind) Spec() ToolSpec {
	switch k {
	case ToolCreateFollowUpTask:
		return ToolSpec{
			Name:        k.String(),
			Description: "Cria uma tarefa de retorno para a equipe de vendas (ex.: ligar para o cliente, agendar visita, enviar tabela de preços).",
			Params: []ToolParam{
				{Name: "title", Type: "string", Description: "Resumo curto da tarefa", Required: true},
				{Name: "due_in_hours", Type: "number", Description: "Em quantas horas a tarefa deve ser feita"},
				{Name: "notes", Type: "string", Description: "Detalhes adicionais informados pelo cliente"},
			},
		}
	case ToolSearchProjectDocuments:
		return ToolSpec{
			Name:        k.String(),
			Description: "Busca informações nos documentos oficiais do empreendimento ativo (plantas, metragem, preços, prazos, lazer).",
			Params: []ToolParam{
				{Name: "query", Type: "string", Description: "Pergunta do cliente reescrita como consulta", Required: true},
			},
		}
	case ToolRequestHumanHandoff:
		return ToolSpec{
			Name:        k.String(),
			Description: "Transfere o atendimento para um corretor humano quando o cliente pedir ou quando a dúvida exigir negociação.",
			Params: []ToolParam{
				{Name: "reason", Type: "string", Description: "Motivo da transferência", Required: true},
			},
		}
	}
	return ToolSpec{Name: k.String()}
}

// DeclaredTools returns the specs for every tool kind.
func DeclaredTools() []ToolSpec {
	specs := make([]ToolSpec, 0, len(AllToolKinds))
	for _, k := range AllToolKinds {
		specs = append(specs, k.Spec())
	}
	return specs
}

type followUpInput struct {
	Title      string   `json:"title"`
	DueInHours *float64 `json:"due_in_hours,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type searchInput struct {
	Query string `json:"query"`
}

type handoffInput struct {
	Reason string `json:"reason"`
}

func decodeInput[T any](kind ToolKind, raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("conversation: decode %s input: %w", kind, err)
	}
	return v, nil
}
