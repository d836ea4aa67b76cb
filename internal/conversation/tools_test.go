package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolKindRoundTrip(t *testing.T) {
	for _, kind := range AllToolKinds {
		got, err := ParseToolKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
	got, err := ParseToolKind("  Create_Follow_Up_Task ")
	require.NoError(t, err)
	assert.Equal(t, ToolCreateFollowUpTask, got)
}

func TestParseToolKindUnknown(t *testing.T) {
	_, err := ParseToolKind("create_followup_task")
	assert.True(t, errors.Is(err, ErrUnknownTool))
	_, err = ParseToolKind("")
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestDeclaredToolsCoverEveryKind(t *testing.T) {
	specs := DeclaredTools()
	require.Len(t, specs, len(AllToolKinds))
	for i, kind := range AllToolKinds {
		assert.Equal(t, kind.String(), specs[i].Name)
		assert.NotEmpty(t, specs[i].Description, kind.String())
		assert.NotEmpty(t, specs[i].Params, kind.String())
	}
}

func TestToolSpecJSONSchema(t *testing.T) {
	schema := ToolCreateFollowUpTask.Spec().JSONSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"title"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "due_in_hours")
	assert.Equal(t, "number", props["due_in_hours"].(map[string]any)["type"])
}

func TestToolKindStringUnknown(t *testing.T) {
	assert.Equal(t, "tool(99)", ToolKind(99).String())
}
