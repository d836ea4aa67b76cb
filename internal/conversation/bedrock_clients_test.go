package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func converseMessage(blocks ...brtypes.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: blocks,
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(120),
			OutputTokens: aws.Int32(30),
			TotalTokens:  aws.Int32(150),
		},
	}
}

func TestBedrockCompleteText(t *testing.T) {
	api := &fakeConverse{out: converseMessage(&brtypes.ContentBlockMemberText{Value: " Olá! "})}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:     "anthropic.claude-test",
		System:    []string{"regras", ""},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: "Oi"}},
		Tools:     DeclaredTools(),
		MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(150), resp.Usage.TotalTokens)

	require.NotNil(t, api.input)
	assert.Len(t, api.input.System, 1)
	require.NotNil(t, api.input.ToolConfig)
	assert.Len(t, api.input.ToolConfig.Tools, len(AllToolKinds))
	spec, ok := api.input.ToolConfig.Tools[0].(*brtypes.ToolMemberToolSpec)
	require.True(t, ok)
	assert.Equal(t, "create_follow_up_task", aws.ToString(spec.Value.Name))
	assert.Equal(t, int32(256), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockCompleteParsesToolUse(t *testing.T) {
	api := &fakeConverse{out: converseMessage(&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
		ToolUseId: aws.String("tooluse-1"),
		Name:      aws.String("search_project_documents"),
		Input:     document.NewLazyDocument(map[string]any{"query": "valor do condomínio"}),
	}})}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:    "anthropic.claude-test",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "quanto é o condomínio?"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tooluse-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search_project_documents", resp.ToolCalls[0].Name)

	var input searchInput
	require.NoError(t, json.Unmarshal(resp.ToolCalls[0].Input, &input))
	assert.Equal(t, "valor do condomínio", input.Query)
	assert.Nil(t, api.input.ToolConfig)
}

func TestBedrockCompleteSendsToolResults(t *testing.T) {
	api := &fakeConverse{out: converseMessage(&brtypes.ContentBlockMemberText{Value: "Anotado!"})}
	client := NewBedrockLLMClient(api)

	_, err := client.Complete(context.Background(), LLMRequest{
		Model: "anthropic.claude-test",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "me liga amanhã"},
			{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "create_follow_up_task", Input: json.RawMessage(`{"title":"Ligar"}`)}}},
			{Role: ChatRoleUser, ToolResults: []ToolResult{{CallID: "t1", Name: "create_follow_up_task", Content: "ok"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, api.input.Messages, 3)

	_, isToolUse := api.input.Messages[1].Content[0].(*brtypes.ContentBlockMemberToolUse)
	assert.True(t, isToolUse)
	result, ok := api.input.Messages[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, "t1", aws.ToString(result.Value.ToolUseId))
	assert.Equal(t, brtypes.ToolResultStatusSuccess, result.Value.Status)
}

func TestBedrockCompleteErrors(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")})
	_, err := client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	assert.ErrorContains(t, err, "throttled")

	_, err = client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	empty := NewBedrockLLMClient(&fakeConverse{out: converseMessage(&brtypes.ContentBlockMemberText{Value: "  "})})
	_, err = empty.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}}})
	assert.Error(t, err)
}

type fakeInvoke struct {
	bodies [][]byte
	out    []byte
}

func (f *fakeInvoke) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.bodies = append(f.bodies, params.Body)
	return &bedrockruntime.InvokeModelOutput{Body: f.out}, nil
}

func TestBedrockEmbed(t *testing.T) {
	api := &fakeInvoke{out: []byte(`{"embedding":[0.25,-0.5,1]}`)}
	client := NewBedrockEmbeddingClient(api, "amazon.titan-embed-text-v2:0", 0)

	vecs, err := client.Embed(context.Background(), []string{"planta de 2 quartos", "lazer completo"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vecs[0])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(api.bodies[0], &sent))
	assert.Equal(t, "planta de 2 quartos", sent["inputText"])
	assert.Equal(t, float64(EmbeddingDimensions), sent["dimensions"])
}

func TestBedrockEmbedEmptyResponse(t *testing.T) {
	client := NewBedrockEmbeddingClient(&fakeInvoke{out: []byte(`{"embedding":[]}`)}, "m", 8)
	_, err := client.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}
