package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event operators want to hear about.
type EventType string

const (
	EventNewLead          EventType = "new_lead"
	EventHandoffRequested EventType = "handoff_requested"
)

// Event is the payload handed to every notifier.
type Event struct {
	Type           EventType         `json:"type"`
	TenantID       uuid.UUID         `json:"tenant_id"`
	ContactID      uuid.UUID         `json:"contact_id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	Phone          string            `json:"phone"`
	ContactName    string            `json:"contact_name,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// Notifier delivers one event to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}
