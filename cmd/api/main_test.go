package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, metrics := setupMetrics()
	if handler == nil || metrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	metrics.ObserveWebhook("message", "enqueued")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "realty_inbox_webhook_events_total") {
		t.Fatalf("expected webhook counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupQueueSQSPath(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		UseMemoryQueue: false,
		InboxQueueURL:  "http://localhost:4566/000000000000/inbox",
	}

	pub, memoryQueue := setupQueue(cfg, aws.Config{Region: "us-east-1"}, logger)
	if pub == nil {
		t.Fatalf("expected publisher")
	}
	if memoryQueue != nil {
		t.Fatalf("expected memoryQueue to be nil for SQS path")
	}
}

func TestSetupInlineWorkerDisabled(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{UseMemoryQueue: false}

	if worker := setupInlineWorker(context.Background(), cfg, logger, stubHandler{}, nil, nil); worker != nil {
		t.Fatalf("expected no worker when memory queue is disabled")
	}
}

func TestSetupInlineWorkerStartsAndStops(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 1}

	pub, memoryQueue := setupQueue(cfg, aws.Config{}, logger)
	if pub == nil || memoryQueue == nil {
		t.Fatalf("expected memory queue publisher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := setupInlineWorker(ctx, cfg, logger, stubHandler{}, memoryQueue, nil)
	if worker == nil {
		t.Fatalf("expected worker when memory queue is enabled")
	}

	cancel()
	waitForInlineWorker(worker, logger)
}

type stubHandler struct{}

func (stubHandler) HandleInbound(context.Context, messaging.InboundEvent) error { return nil }

func (stubHandler) HandleStatus(context.Context, messaging.StatusEvent) error { return nil }
