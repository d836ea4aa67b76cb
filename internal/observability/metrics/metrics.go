package metrics

import "github.com/prometheus/client_golang/prometheus"

// InboxMetrics exposes counters/histograms for the inbound WhatsApp pipeline.
type InboxMetrics struct {
	webhookTotal      *prometheus.CounterVec
	processingLatency *prometheus.HistogramVec
	outboundTotal     *prometheus.CounterVec
	mediaTotal        *prometheus.CounterVec
	toolCallsTotal    *prometheus.CounterVec
	notifyTotal       *prometheus.CounterVec
}

// NewInboxMetrics registers the inbox collectors on reg, or on the default
// registerer when reg is nil.
func NewInboxMetrics(reg prometheus.Registerer) *InboxMetrics {
	m := &InboxMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "inbox",
			Name:      "webhook_events_total",
			Help:      "Total WhatsApp webhook events by kind and outcome",
		}, []string{"kind", "status"}),
		processingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "realty",
			Subsystem: "inbox",
			Name:      "processing_latency_seconds",
			Help:      "Latency of inbound event processing off the request path",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "inbox",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"origin", "status"}),
		mediaTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "inbox",
			Name:      "media_ingest_total",
			Help:      "Media ingestion attempts by failing step",
		}, []string{"step", "status"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Agent tool invocations",
		}, []string{"tool", "status"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realty",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by event and outcome",
		}, []string{"event", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.processingLatency, m.outboundTotal, m.mediaTotal, m.toolCallsTotal, m.notifyTotal)
	return m
}

func (m *InboxMetrics) ObserveWebhook(kind, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(kind, status).Inc()
}

func (m *InboxMetrics) ObserveProcessing(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.processingLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *InboxMetrics) ObserveOutbound(origin, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(origin, status).Inc()
}

func (m *InboxMetrics) ObserveMedia(step, status string) {
	if m == nil {
		return
	}
	m.mediaTotal.WithLabelValues(step, status).Inc()
}

func (m *InboxMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *InboxMetrics) ObserveNotification(event, status string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(event, status).Inc()
}
