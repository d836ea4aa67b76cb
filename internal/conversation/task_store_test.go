package conversation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresTaskStoreCreate(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresTaskStore(mock)
	tenantID, convID := uuid.New(), uuid.New()
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO follow_up_tasks").
		WithArgs(tenantID, nil, convID, nil, "Ligar amanhã", "", pgxmock.AnyArg(), "wamid.T1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	got, err := store.CreateFollowUp(context.Background(), FollowUpTask{
		TenantID:        tenantID,
		ConversationID:  convID,
		Title:           "Ligar amanhã",
		SourceMessageID: "wamid.T1",
	})
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStoreRedeliveryReturnsExisting(t *testing.T) {
	mock := newMockPool(t)
	store := NewPostgresTaskStore(mock)
	tenantID := uuid.New()
	existing := uuid.New()

	mock.ExpectQuery("ON CONFLICT \\(tenant_id, source_message_id\\) DO NOTHING").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM follow_up_tasks").
		WithArgs(tenantID, "wamid.T1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	got, err := store.CreateFollowUp(context.Background(), FollowUpTask{
		TenantID:        tenantID,
		Title:           "Enviar tabela",
		SourceMessageID: "wamid.T1",
	})
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

func TestPostgresTaskStoreValidates(t *testing.T) {
	store := NewPostgresTaskStore(newMockPool(t))
	_, err := store.CreateFollowUp(context.Background(), FollowUpTask{SourceMessageID: "x"})
	assert.Error(t, err)
	_, err = store.CreateFollowUp(context.Background(), FollowUpTask{Title: "x"})
	assert.Error(t, err)
}
