package notify

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultAttemptTimeout = 10 * time.Second
)

// Dispatcher fans events out to notifiers in the background. Delivery is
// best effort: failures are retried a bounded number of times, logged, and
// never reported to the caller.
type Dispatcher struct {
	notifiers      []Notifier
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	metrics        *metrics.InboxMetrics
	logger         *logging.Logger

	wg sync.WaitGroup
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first retry delay; later retries double it.
func WithBaseDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.baseDelay = delay
		}
	}
}

func WithAttemptTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.attemptTimeout = timeout
		}
	}
}

func WithMetrics(m *metrics.InboxMetrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithLogger(logger *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher builds a dispatcher. With no notifiers every Dispatch is a no-op.
func NewDispatcher(notifiers []Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		maxAttempts:    defaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		attemptTimeout: defaultAttemptTimeout,
		logger:         logging.Default(),
	}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch schedules delivery and returns immediately. The caller's
// cancellation does not stop delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if d == nil || len(d.notifiers) == 0 {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	base := context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			d.deliver(base, n, ev)
		}(n)
	}
}

// Wait blocks until every scheduled delivery finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, ev Event) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		lastErr = n.Notify(attemptCtx, ev)
		cancel()
		if lastErr == nil {
			d.metrics.ObserveNotification(string(ev.Type), "success")
			d.logger.Info("notification delivered",
				"notifier", n.Name(),
				"event", ev.Type,
				"tenant_id", ev.TenantID,
				"attempt", attempt,
			)
			return
		}
		d.logger.Warn("notification attempt failed",
			"notifier", n.Name(),
			"event", ev.Type,
			"tenant_id", ev.TenantID,
			"attempt", attempt,
			"error", lastErr,
		)
		if attempt < d.maxAttempts {
			time.Sleep(d.baseDelay << (attempt - 1))
		}
	}
	d.metrics.ObserveNotification(string(ev.Type), "failed")
	d.logger.Error("notification dropped after retries",
		"notifier", n.Name(),
		"event", ev.Type,
		"tenant_id", ev.TenantID,
		"attempts", d.maxAttempts,
		"error", lastErr,
	)
}
