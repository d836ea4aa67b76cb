package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/realty-inbox/cmd/mainconfig"
	"github.com/wolfman30/realty-inbox/internal/api/router"
	"github.com/wolfman30/realty-inbox/internal/app/bootstrap"
	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/http/handlers"
	"github.com/wolfman30/realty-inbox/internal/inbox"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting realty-inbox API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, inboxMetrics := setupMetrics()

	app, err := bootstrap.BuildInbox(ctx, cfg, &awsCfg, pool, redisClient, inboxMetrics, logger)
	if err != nil {
		logger.Error("failed to build inbox", "error", err)
		os.Exit(1)
	}

	publisher, memoryQueue := setupQueue(cfg, awsCfg, logger)
	worker := setupInlineWorker(ctx, cfg, logger, app.Processor, memoryQueue, inboxMetrics)

	webhook := messaging.NewWebhookHandler(messaging.WebhookConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
	}, publisher, inboxMetrics, logger)

	var operator *handlers.OperatorHandler
	if cfg.OperatorJWTSecret != "" {
		var documents handlers.DocumentIndexer
		if app.Documents != nil {
			documents = app.Documents
		}
		operator = handlers.NewOperatorHandler(app.Store, app.Sender, documents, cfg.WhatsAppPhoneNumberID, logger)
	} else {
		logger.Warn("OPERATOR_JWT_SECRET not set; operator API disabled")
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		Operator:       operator,
		OperatorSecret: cfg.OperatorJWTSecret,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	waitForInlineWorker(worker, logger)
	app.Notifier.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the inbox collectors on a private registry and
// returns the /metrics handler for it.
func setupMetrics() (http.Handler, *metrics.InboxMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewInboxMetrics(reg)
}

// connectPostgresPool returns nil when the URL is empty or the database is unreachable.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		logger.Error("DATABASE_URL not set")
		return nil
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, &appconfig.Config{DatabaseURL: databaseURL}, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		return nil
	}
	return pool
}

// setupQueue picks the in-process queue for local runs and SQS otherwise.
// The memory queue is returned so the inline worker can drain it.
func setupQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*inbox.Publisher, *inbox.MemoryQueue) {
	if cfg.UseMemoryQueue {
		queue := inbox.NewMemoryQueue(256)
		logger.Info("using in-memory inbox queue")
		return inbox.NewPublisher(queue, logger), queue
	}
	queue := inbox.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboxQueueURL)
	logger.Info("using SQS inbox queue", "queue_url", cfg.InboxQueueURL)
	return inbox.NewPublisher(queue, logger), nil
}

// setupInlineWorker starts a worker on the memory queue. It returns nil when
// events go to SQS and a separate inbox-worker drains them.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, handler inbox.EventHandler, queue *inbox.MemoryQueue, m *metrics.InboxMetrics) *inbox.Worker {
	if !cfg.UseMemoryQueue || queue == nil || handler == nil {
		return nil
	}
	worker := inbox.NewWorker(handler, queue, logger,
		inbox.WithWorkerCount(cfg.WorkerCount),
		inbox.WithWorkerMetrics(m),
	)
	worker.Start(ctx)
	logger.Info("inline inbox worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *inbox.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline inbox worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline inbox worker shutdown timed out")
	}
}
