package conversation

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationContextTransitions(t *testing.T) {
	cc := NewConversationContext(uuid.New(), "5511987654321")
	assert.Equal(t, StateAwaitProjectContext, cc.State)
	assert.False(t, cc.Ready())

	alfa := Project{ID: uuid.New(), Name: "Residencial Alfa"}
	beta := Project{ID: uuid.New(), Name: "Edifício Beta"}

	err := cc.SwitchProject(beta)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "cannot switch before a project is matched")

	require.NoError(t, cc.MatchProject(alfa))
	assert.Equal(t, StateReady, cc.State)
	assert.Equal(t, "Residencial Alfa", cc.ProjectName)
	assert.True(t, cc.Ready())

	err = cc.MatchProject(beta)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "match only applies while awaiting")

	require.NoError(t, cc.SwitchProject(beta))
	assert.Equal(t, StateReady, cc.State)
	assert.Equal(t, beta.ID, cc.ProjectID)
}

func TestConversationContextRejectsEmptyProject(t *testing.T) {
	cc := NewConversationContext(uuid.New(), "1")
	assert.Error(t, cc.MatchProject(Project{Name: "sem id"}))
	assert.Equal(t, StateAwaitProjectContext, cc.State)
}

func TestParseConversationState(t *testing.T) {
	assert.Equal(t, StateReady, ParseConversationState("READY"))
	assert.Equal(t, StateAwaitProjectContext, ParseConversationState(""))
	assert.Equal(t, StateAwaitProjectContext, ParseConversationState("garbage"))
}
