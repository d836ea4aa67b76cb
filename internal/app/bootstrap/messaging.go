package bootstrap

import (
	"errors"

	appconfig "github.com/wolfman30/realty-inbox/internal/config"
	"github.com/wolfman30/realty-inbox/internal/messaging"
	"github.com/wolfman30/realty-inbox/internal/messaging/whatsappclient"
	"github.com/wolfman30/realty-inbox/internal/observability/metrics"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// BuildWhatsAppClient creates the Cloud API client. It returns nil and a
// reason when credentials are missing so callers can run receive-only.
func BuildWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger) (*whatsappclient.Client, string) {
	if cfg == nil {
		return nil, "missing config"
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := whatsappclient.New(whatsappclient.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Timeout:       cfg.WhatsAppTimeout,
		MaxRetries:    cfg.WhatsAppMaxRetries,
		MaxMediaBytes: cfg.MediaMaxBytes,
		Logger:        logger.Logger,
	})
	if err != nil {
		if errors.Is(err, whatsappclient.ErrMissingAccessToken) {
			return nil, "WHATSAPP_ACCESS_TOKEN not set"
		}
		return nil, err.Error()
	}
	return client, ""
}

// BuildSender wraps the provider client with outbound persistence. Without a
// client the sender still exists and every send fails fast.
func BuildSender(client *whatsappclient.Client, store *messaging.Store, m *metrics.InboxMetrics, logger *logging.Logger) *messaging.Sender {
	if client == nil {
		return messaging.NewSender(nil, store, m, logger)
	}
	return messaging.NewSender(client, store, m, logger)
}
