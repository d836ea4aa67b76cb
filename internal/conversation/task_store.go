package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FollowUpTask is a to-do for the sales team created by the agent.
type FollowUpTask struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ContactID       uuid.UUID
	ConversationID  uuid.UUID
	ProjectID       uuid.UUID
	Title           string
	Notes           string
	DueAt           *time.Time
	SourceMessageID string
}

// TaskStore persists follow-up tasks.
type TaskStore interface {
	CreateFollowUp(ctx context.Context, task FollowUpTask) (uuid.UUID, error)
}

type PostgresTaskStore struct {
	pool PgxPool
}

var _ TaskStore = (*PostgresTaskStore)(nil)

func NewPostgresTaskStore(pool PgxPool) *PostgresTaskStore {
	if pool == nil {
		panic("conversation: task store pool cannot be nil")
	}
	return &PostgresTaskStore{pool: pool}
}

// CreateFollowUp inserts the task once per source message. A redelivered
// message gets the id of the task it already created.
func (s *PostgresTaskStore) CreateFollowUp(ctx context.Context, task FollowUpTask) (uuid.UUID, error) {
	if task.Title == "" {
		return uuid.Nil, errors.New("conversation: task title is required")
	}
	if task.SourceMessageID == "" {
		return uuid.Nil, errors.New("conversation: task source message id is required")
	}
	query := `
		INSERT INTO follow_up_tasks (tenant_id, contact_id, conversation_id, project_id, title, notes, due_at, source_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, source_message_id) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		task.TenantID, optionalUUID(task.ContactID), optionalUUID(task.ConversationID), optionalUUID(task.ProjectID),
		task.Title, task.Notes, task.DueAt, task.SourceMessageID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("conversation: insert follow-up task: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT id FROM follow_up_tasks WHERE tenant_id = $1 AND source_message_id = $2`,
		task.TenantID, task.SourceMessageID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("conversation: load existing follow-up task: %w", err)
	}
	return id, nil
}

func optionalUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
