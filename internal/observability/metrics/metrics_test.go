package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestInboxMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInboxMetrics(reg)
	m.ObserveWebhook("message", "accepted")
	m.ObserveWebhook("message", "accepted")
	m.ObserveProcessing("message", 0.2)
	m.ObserveOutbound("agent", "sent")
	m.ObserveMedia("upload", "failed")
	m.ObserveToolCall("create_follow_up_task", "ok")
	m.ObserveNotification("new_lead", "delivered")

	if got := counterValue(t, m.webhookTotal.WithLabelValues("message", "accepted")); got != 2 {
		t.Fatalf("expected 2 webhook events, got %v", got)
	}
	if got := counterValue(t, m.toolCallsTotal.WithLabelValues("create_follow_up_task", "ok")); got != 1 {
		t.Fatalf("expected 1 tool call, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("expected 6 metric families, got %d", len(families))
	}
}

func TestInboxMetricsNilSafe(t *testing.T) {
	var m *InboxMetrics
	m.ObserveWebhook("event", "status")
	m.ObserveProcessing("event", 0.1)
	m.ObserveOutbound("operator", "failed")
	m.ObserveMedia("download", "failed")
	m.ObserveToolCall("unknown", "rejected")
	m.ObserveNotification("new_lead", "failed")
}
