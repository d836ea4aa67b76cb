package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/notify"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// BuildNotifier wires operator alerts. SES is preferred when a from address is
// configured, SendGrid otherwise. A dispatcher with no channels is returned
// when nothing is configured so callers never branch on nil.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.InboxMetrics, logger *logging.Logger) *notify.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []notify.DispatcherOption{notify.WithMetrics(m), notify.WithLogger(logger)}
	if cfg == nil {
		return notify.NewDispatcher(nil, opts...)
	}
	opts = append(opts,
		notify.WithMaxAttempts(cfg.NotifyMaxAttempts),
		notify.WithBaseDelay(cfg.NotifyBaseDelay),
	)

	var notifiers []notify.Notifier
	if wh := notify.NewWebhookNotifier(cfg.NotifyWebhookURL, nil); wh != nil {
		notifiers = append(notifiers, wh)
	}
	if sender := buildEmailSender(cfg, awsCfg, logger); sender != nil {
		if email := notify.NewEmailNotifier(sender, cfg.NotifyEmailTo); email != nil {
			notifiers = append(notifiers, email)
		}
	}

	channels := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		channels = append(channels, n.Name())
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels configured; lead alerts disabled")
	} else {
		logger.Info("notification channels configured", "channels", channels)
	}
	return notify.NewDispatcher(notifiers, opts...)
}

func buildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if awsCfg != nil && cfg.SESFromEmail != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			return ses
		}
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg
	}
	return nil
}
