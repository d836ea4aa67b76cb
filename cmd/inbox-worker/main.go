package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/realty-inbox/cmd/mainconfig"
	"github.com/wolfman30/realty-inbox/internal/app/bootstrap"
	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/inbox"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		logging.Default().Warn("dotenv not loaded", "error", err)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" || cfg.InboxQueueURL == "" {
		logger.Error("inbox worker requires DATABASE_URL and INBOX_QUEUE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// No HTTP listener here, so collectors land on the default registry.
	inboxMetrics := metrics.NewInboxMetrics(nil)

	app, err := bootstrap.BuildInbox(ctx, cfg, &awsConfig, pool, redisClient, inboxMetrics, logger)
	if err != nil {
		logger.Error("failed to build inbox", "error", err)
		os.Exit(1)
	}

	queue := inbox.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.InboxQueueURL)
	worker := inbox.NewWorker(
		app.Processor,
		queue,
		logger,
		inbox.WithWorkerCount(cfg.WorkerCount),
		inbox.WithWorkerMetrics(inboxMetrics),
	)
	worker.Start(ctx)
	logger.Info("inbox worker started", "workers", cfg.WorkerCount, "queue_url", cfg.InboxQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down inbox worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		app.Notifier.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("inbox worker stopped")
	case <-doneCtx.Done():
		logger.Error("inbox worker shutdown timed out", "error", doneCtx.Err())
	}
}
