package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil))
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Realty Inbox", sender.fromName)
}

func TestSendGridSenderNilClient(t *testing.T) {
	var sender *SendGridSender
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "a@example.com"}))
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "alertas@imob.example", FromName: "Imob"}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{To: "gerente@imob.example", Subject: "Oi", Body: "corpo"})
	require.NoError(t, err)
	assert.Equal(t, "Imob <alertas@imob.example>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"gerente@imob.example"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "corpo", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Nil(t, api.input.Content.Simple.Body.Html)
}

func TestSESSenderError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "a@b.c"}, nil)
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "x@y.z"}), "throttled")
}

func TestNewSESSenderRequiresFromEmail(t *testing.T) {
	assert.Nil(t, NewSESSender(&fakeSES{}, SESConfig{}, nil))
	assert.Nil(t, NewSESSender(nil, SESConfig{FromEmail: "a@b.c"}, nil))
}

func TestPickEmailSender(t *testing.T) {
	assert.Nil(t, PickEmailSender(nil, nil))

	ses := NewSESSender(&fakeSES{}, SESConfig{FromEmail: "a@b.c"}, nil)
	sg := NewSendGridSender(SendGridConfig{APIKey: "k"}, nil)
	assert.Same(t, ses, PickEmailSender(ses, sg))
	assert.Same(t, sg, PickEmailSender(nil, sg))
}

type recordingSender struct {
	sent []EmailMessage
	fail map[string]bool
}

func (r *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	if r.fail[msg.To] {
		return errors.New("mailbox full")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestEmailNotifierSendsToEveryRecipient(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"b@imob.example": true}}
	n := NewEmailNotifier(sender, " a@imob.example, b@imob.example ,c@imob.example")
	require.NotNil(t, n)

	err := n.Notify(context.Background(), Event{
		Type:           EventNewLead,
		ConversationID: uuid.New(),
		Phone:          "5511987654321",
		ContactName:    "Maria",
		Summary:        "Olá, quero saber sobre o Residencial Alfa",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b@imob.example")
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Novo lead no WhatsApp: Maria", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Telefone: 5511987654321")
	assert.Contains(t, sender.sent[0].Body, "Residencial Alfa")
}

func TestNewEmailNotifierDisabled(t *testing.T) {
	assert.Nil(t, NewEmailNotifier(&recordingSender{}, " , "))
	assert.Nil(t, NewEmailNotifier(nil, "a@b.c"))
}

func TestRenderEmailHandoffFallsBackToPhone(t *testing.T) {
	subject, _ := renderEmail(Event{Type: EventHandoffRequested, Phone: "5511999990000"})
	assert.Equal(t, "Atendimento humano solicitado: 5511999990000", subject)
}
