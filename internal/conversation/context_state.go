package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationState is the agent's position in the project-scoping flow.
type ConversationState string

const (
	StateAwaitProjectContext ConversationState = "AWAIT_PROJECT_CONTEXT"
	StateReady               ConversationState = "READY"
)

var ErrInvalidTransition = errors.New("conversation: invalid state transition")

// ParseConversationState reads a persisted state. Unknown or empty values
// start over in AWAIT_PROJECT_CONTEXT.
func ParseConversationState(s string) ConversationState {
	if ConversationState(s) == StateReady {
		return StateReady
	}
	return StateAwaitProjectContext
}

// ConversationContext is the per-sender agent state, keyed by tenant and phone.
type ConversationContext struct {
	TenantID    uuid.UUID
	PhoneNumber string
	State       ConversationState
	ProjectID   uuid.UUID
	ProjectName string
	UpdatedAt   time.Time
}

// NewConversationContext starts a context waiting for a project.
func NewConversationContext(tenantID uuid.UUID, phone string) ConversationContext {
	return ConversationContext{TenantID: tenantID, PhoneNumber: phone, State: StateAwaitProjectContext}
}

// MatchProject moves AWAIT_PROJECT_CONTEXT to READY.
func (c *ConversationContext) MatchProject(p Project) error {
	if c.State != StateAwaitProjectContext {
		return fmt.Errorf("%w: match project from %s", ErrInvalidTransition, c.State)
	}
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: project id required", ErrInvalidTransition)
	}
	c.State = StateReady
	c.ProjectID = p.ID
	c.ProjectName = p.Name
	return nil
}

// SwitchProject changes the active project of a READY context.
func (c *ConversationContext) SwitchProject(p Project) error {
	if c.State != StateReady {
		return fmt.Errorf("%w: switch project from %s", ErrInvalidTransition, c.State)
	}
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: project id required", ErrInvalidTransition)
	}
	c.ProjectID = p.ID
	c.ProjectName = p.Name
	return nil
}

// Ready reports whether a project scope is active.
func (c ConversationContext) Ready() bool {
	return c.State == StateReady && c.ProjectID != uuid.Nil
}
