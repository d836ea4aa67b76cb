package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the Postgres stores here.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ContextStore loads and saves conversation contexts.
type ContextStore interface {
	Load(ctx context.Context, tenantID uuid.UUID, phone string) (ConversationContext, error)
	Save(ctx context.Context, cc ConversationContext) error
}

// PostgresContextStore keeps contexts in conversation_contexts and mirrors the
// active project into conversations.context for the CRM UI.
type PostgresContextStore struct {
	pool PgxPool
}

var _ ContextStore = (*PostgresContextStore)(nil)

func NewPostgresContextStore(pool PgxPool) *PostgresContextStore {
	if pool == nil {
		panic("conversation: context store pool cannot be nil")
	}
	return &PostgresContextStore{pool: pool}
}

// Load returns a fresh AWAIT_PROJECT_CONTEXT context when none is stored.
func (s *PostgresContextStore) Load(ctx context.Context, tenantID uuid.UUID, phone string) (ConversationContext, error) {
	query := `
		SELECT state, project_id, project_name, updated_at
		FROM conversation_contexts
		WHERE tenant_id = $1 AND phone_number = $2
	`
	cc := NewConversationContext(tenantID, phone)
	var (
		state     string
		projectID *uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, tenantID, phone).Scan(&state, &projectID, &cc.ProjectName, &cc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cc, nil
	}
	if err != nil {
		return ConversationContext{}, fmt.Errorf("conversation: load context: %w", err)
	}
	cc.State = ParseConversationState(state)
	if projectID != nil {
		cc.ProjectID = *projectID
	}
	if cc.State == StateReady && cc.ProjectID == uuid.Nil {
		// project deleted underneath a READY context
		cc.State = StateAwaitProjectContext
		cc.ProjectName = ""
	}
	return cc, nil
}

func (s *PostgresContextStore) Save(ctx context.Context, cc ConversationContext) error {
	var projectID any
	if cc.ProjectID != uuid.Nil {
		projectID = cc.ProjectID
	}
	query := `
		INSERT INTO conversation_contexts (tenant_id, phone_number, state, project_id, project_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, phone_number) DO UPDATE
		SET state = EXCLUDED.state,
		    project_id = EXCLUDED.project_id,
		    project_name = EXCLUDED.project_name,
		    updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, cc.TenantID, cc.PhoneNumber, string(cc.State), projectID, cc.ProjectName); err != nil {
		return fmt.Errorf("conversation: save context: %w", err)
	}

	mirror, err := json.Marshal(map[string]string{
		"state":        string(cc.State),
		"project_name": cc.ProjectName,
	})
	if err != nil {
		return fmt.Errorf("conversation: marshal context mirror: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET context = context || $3::jsonb WHERE tenant_id = $1 AND phone_number = $2`,
		cc.TenantID, cc.PhoneNumber, string(mirror),
	); err != nil {
		return fmt.Errorf("conversation: mirror context: %w", err)
	}
	return nil
}
