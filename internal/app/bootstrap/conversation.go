package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// AgentDeps are the shared components the agent is assembled from.
type AgentDeps struct {
	Pool     conversation.PgxPool
	Redis    *redis.Client
	Messages *messaging.Store
	Events   conversation.EventDispatcher
	Metrics  *metrics.InboxMetrics
}

// Agent is the assembled reply agent plus the document index it searches.
type Agent struct {
	Orchestrator *conversation.Orchestrator
	Documents    *conversation.PGVectorStore
}

// BuildAgent wires the LLM reply agent from config. It returns nil when no
// model is configured so the inbox runs persist-only.
func BuildAgent(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, deps AgentDeps, logger *logging.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if deps.Pool == nil || deps.Messages == nil {
		return nil, fmt.Errorf("bootstrap: agent requires postgres")
	}

	llm, err := buildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	if llm == nil {
		logger.Warn("no LLM configured; automatic replies disabled")
		return nil, nil
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config is required for embeddings")
	}

	embedder := conversation.NewBedrockEmbeddingClient(
		bedrockruntime.NewFromConfig(*awsCfg),
		cfg.BedrockEmbeddingModelID,
		conversation.EmbeddingDimensions,
	)
	documents := conversation.NewPGVectorStore(deps.Pool, embedder, logger)
	retriever := conversation.NewProjectRetriever(documents, cfg.RAGMinSimilarity, cfg.RAGTopK)

	tools := conversation.NewToolDispatcher(
		conversation.NewPostgresTaskStore(deps.Pool),
		retriever,
		deps.Messages,
		deps.Events,
		deps.Metrics,
		logger,
	)
	orchestrator := conversation.NewOrchestrator(
		llm,
		conversation.NewPostgresContextStore(deps.Pool),
		conversation.NewProjectCatalog(deps.Pool, deps.Redis, cfg.ProjectCacheTTL, logger),
		deps.Messages,
		tools,
		conversation.OrchestratorConfig{
			ModelID:      cfg.BedrockModelID,
			HistoryLimit: cfg.AgentHistoryLimit,
			MaxTokens:    cfg.AgentMaxTokens,
		},
		deps.Metrics,
		logger,
	)
	logger.Info("reply agent enabled",
		"model", cfg.BedrockModelID,
		"fallback", strings.TrimSpace(cfg.GeminiAPIKey) != "",
		"project_cache", deps.Redis != nil,
	)
	return &Agent{Orchestrator: orchestrator, Documents: documents}, nil
}

// buildLLMClient prefers Bedrock with Gemini as fallback. Either one alone is
// accepted. Both missing yields a nil client.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	var primary conversation.LLMClient
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config is required for bedrock")
		}
		primary = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg))
	}

	var fallback conversation.LLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		fallback = gemini
	}

	switch {
	case primary != nil && fallback != nil:
		return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
	case primary != nil:
		return primary, nil
	case fallback != nil:
		return fallback, nil
	default:
		return nil, nil
	}
}
