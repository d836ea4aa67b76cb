package bootstrap

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

func TestBuildAgentRequiresConfig(t *testing.T) {
	_, err := BuildAgent(context.Background(), nil, nil, AgentDeps{}, nil)
	assert.Error(t, err)
}

func TestBuildAgentRequiresPostgres(t *testing.T) {
	_, err := BuildAgent(context.Background(), &appconfig.Config{BedrockModelID: "m"}, &aws.Config{}, AgentDeps{}, nil)
	assert.Error(t, err)
}

func TestBuildAgentWithoutModelIsDisabled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agent, err := BuildAgent(context.Background(), &appconfig.Config{}, nil, AgentDeps{
		Pool:     mock,
		Messages: messaging.NewStore(mock),
	}, logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestBuildAgentWithBedrock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := &appconfig.Config{
		BedrockModelID:          "anthropic.claude-3-haiku",
		BedrockEmbeddingModelID: "amazon.titan-embed-text-v2:0",
		AgentHistoryLimit:       8,
	}
	agent, err := BuildAgent(context.Background(), cfg, &aws.Config{Region: "us-east-1"}, AgentDeps{
		Pool:     mock,
		Messages: messaging.NewStore(mock),
		Redis:    BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: miniredis.RunT(t).Addr()}, nil, true),
	}, logging.New("error"))
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.NotNil(t, agent.Orchestrator)
	assert.NotNil(t, agent.Documents)
}

func TestBuildLLMClientSelection(t *testing.T) {
	logger := logging.New("error")

	llm, err := buildLLMClient(context.Background(), &appconfig.Config{}, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, llm)

	llm, err = buildLLMClient(context.Background(), &appconfig.Config{BedrockModelID: "m"}, &aws.Config{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &conversation.BedrockLLMClient{}, llm)

	_, err = buildLLMClient(context.Background(), &appconfig.Config{BedrockModelID: "m"}, nil, logger)
	assert.Error(t, err)
}

func TestBuildRedisClientDisabledAndUnreachable(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true))
}

func TestBuildPostgresPoolRequiresURL(t *testing.T) {
	_, err := BuildPostgresPool(context.Background(), &appconfig.Config{}, nil)
	assert.Error(t, err)
}
