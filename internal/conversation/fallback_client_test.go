package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackClientUsesPrimary(t *testing.T) {
	primary := &scriptedLLM{responses: []LLMResponse{{Text: "primário"}}}
	fallback := &scriptedLLM{}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "primário", resp.Text)
	assert.Empty(t, fallback.requests)
}

func TestFallbackClientReplaysOnFailure(t *testing.T) {
	primary := &scriptedLLM{errs: []error{errors.New("bedrock 503")}}
	fallback := &scriptedLLM{responses: []LLMResponse{{Text: "reserva"}}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	req := LLMRequest{Model: "m", Tools: DeclaredTools()}
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "reserva", resp.Text)
	require.Len(t, fallback.requests, 1)
	assert.Len(t, fallback.requests[0].Tools, len(req.Tools))
}

func TestFallbackClientWithoutFallbackReturnsPrimaryError(t *testing.T) {
	primary := &scriptedLLM{errs: []error{errors.New("bedrock 503")}}
	client := NewFallbackLLMClient(primary, nil, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "bedrock 503")
}

func TestFallbackClientBothFail(t *testing.T) {
	primary := &scriptedLLM{errs: []error{errors.New("primary down")}}
	fallback := &scriptedLLM{errs: []error{errors.New("fallback down")}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "fallback down")
}
