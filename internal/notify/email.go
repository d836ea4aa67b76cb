package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// EmailSender defines the interface for sending emails.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

const defaultFromName = "Realty Inbox"

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// EmailNotifier turns events into operator emails.
type EmailNotifier struct {
	sender     EmailSender
	recipients []string
}

// NewEmailNotifier returns nil when there is no sender or recipient.
// recipients is a comma separated list.
func NewEmailNotifier(sender EmailSender, recipients string) *EmailNotifier {
	var to []string
	for _, r := range strings.Split(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	if sender == nil || len(to) == 0 {
		return nil
	}
	return &EmailNotifier{sender: sender, recipients: to}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, ev Event) error {
	subject, body := renderEmail(ev)
	var errs []error
	for _, to := range n.recipients {
		if err := n.sender.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func renderEmail(ev Event) (string, string) {
	name := ev.ContactName
	if name == "" {
		name = ev.Phone
	}
	var subject string
	switch ev.Type {
	case EventNewLead:
		subject = "Novo lead no WhatsApp: " + name
	case EventHandoffRequested:
		subject = "Atendimento humano solicitado: " + name
	default:
		subject = "Evento " + string(ev.Type) + ": " + name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contato: %s\n", name)
	fmt.Fprintf(&b, "Telefone: %s\n", ev.Phone)
	if ev.Summary != "" {
		fmt.Fprintf(&b, "Resumo: %s\n", ev.Summary)
	}
	for k, v := range ev.Attributes {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	fmt.Fprintf(&b, "Conversa: %s\n", ev.ConversationID)
	return subject, b.String()
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ Notifier    = (*EmailNotifier)(nil)
)

// PickEmailSender prefers SES and falls back to SendGrid. It returns a nil
// interface when neither is configured.
func PickEmailSender(ses *SESSender, sendGrid *SendGridSender) EmailSender {
	switch {
	case ses != nil:
		return ses
	case sendGrid != nil:
		return sendGrid
	}
	return nil
}
