package notifications

import (
	"context"
	"encoding/base64"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	From() *mail.Email
	Send(ctx context.Context, message *mail.SGMailV3) error
}

// SendgridSender delivers messages through SendGrid.
type SendgridSender struct {
	client mailClient
}

// NewSendgridSender wraps a SendGrid client.
func NewSendgridSender(client mailClient) *SendgridSender {
	return &SendgridSender{client: client}
}

func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))

	message := mail.NewV3Mail()
	message.SetFrom(s.client.From())
	message.Subject = msg.Subject
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetFilename(att.Filename)
		a.SetType(att.ContentType)
		a.SetDisposition("attachment")
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		message.AddAttachment(a)
	}
	return s.client.Send(ctx, message)
}
