package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/crm"
	"github.com/wolfman30/realty-inbox/internal/inbox"
	"github.com/wolfman30/realty-inbox/internal/media"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/notify"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// Inbox holds the components shared by the API and the worker.
type Inbox struct {
	Store     *messaging.Store
	Sender    *messaging.Sender
	Processor *inbox.Processor
	Notifier  *notify.Dispatcher
	Documents *conversation.PGVectorStore
}

// BuildInbox assembles the inbound processing chain. Optional stages (media,
// agent, notifications) are attached only when their config is present.
func BuildInbox(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, pool *pgxpool.Pool, rdb *redis.Client, m *metrics.InboxMetrics, logger *logging.Logger) (*Inbox, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("bootstrap: postgres pool is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	store := messaging.NewStore(pool)
	notifier := BuildNotifier(cfg, awsCfg, m, logger)

	client, reason := BuildWhatsAppClient(cfg, logger)
	if client == nil {
		logger.Warn("whatsapp client disabled; replies and media downloads off", "reason", reason)
	}
	sender := BuildSender(client, store, m, logger)

	resolver := crm.NewResolver(
		crm.NewPostgresRepository(pool),
		messaging.NewPhoneCanonicalizer(cfg.DefaultCountryCode),
		crm.ResolverConfig{FunnelName: cfg.DefaultFunnelName, ColumnName: cfg.DefaultColumnName},
		logger,
	)

	opts := []inbox.ProcessorOption{inbox.WithEventDispatcher(notifier)}
	if raw := strings.TrimSpace(cfg.DefaultTenantID); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: invalid DEFAULT_TENANT_ID: %w", err)
		}
		opts = append(opts, inbox.WithDefaultTenant(tenantID))
	}
	if ingester := buildMediaPipeline(cfg, awsCfg, client, store, m, logger); ingester != nil {
		opts = append(opts, inbox.WithMediaIngester(ingester))
	}

	agent, err := BuildAgent(ctx, cfg, awsCfg, AgentDeps{
		Pool:     pool,
		Redis:    rdb,
		Messages: store,
		Events:   notifier,
		Metrics:  m,
	}, logger)
	if err != nil {
		return nil, err
	}
	var documents *conversation.PGVectorStore
	if agent != nil {
		opts = append(opts, inbox.WithAgent(agent.Orchestrator, sender))
		documents = agent.Documents
	}

	return &Inbox{
		Store:     store,
		Sender:    sender,
		Processor: inbox.NewProcessor(store, resolver, logger, opts...),
		Notifier:  notifier,
		Documents: documents,
	}, nil
}

func buildMediaPipeline(cfg *appconfig.Config, awsCfg *aws.Config, client *whatsappclient.Client, store *messaging.Store, m *metrics.InboxMetrics, logger *logging.Logger) *media.Pipeline {
	if client == nil {
		return nil
	}
	if awsCfg == nil || strings.TrimSpace(cfg.MediaBucket) == "" {
		logger.Warn("MEDIA_BUCKET not set; media messages keep their placeholder")
		return nil
	}
	s3Client := s3.NewFromConfig(*awsCfg)
	storageOpts := []media.S3Option{}
	if cfg.MediaPublicBaseURL != "" {
		storageOpts = append(storageOpts, media.WithPublicBaseURL(cfg.MediaPublicBaseURL))
	} else {
		storageOpts = append(storageOpts, media.WithPresigner(s3.NewPresignClient(s3Client), cfg.MediaURLTTL))
	}
	storage := media.NewS3Storage(s3Client, cfg.MediaBucket, storageOpts...)
	return media.NewPipeline(client, storage, store, m, logger)
}
