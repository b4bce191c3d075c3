package sendgrid

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type mailAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Client sends transactional email through the SendGrid v3 API.
type Client struct {
	api  mailAPI
	from *mail.Email
}

// NewClient builds a client from config. It returns nil, nil when no API key is set.
func NewClient(cfg config.SendgridConfig) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, nil
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("sendgrid from email is required")
	}
	return &Client{
		api:  sg.NewSendClient(key),
		from: mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
	}, nil
}

// From returns the configured sender identity.
func (c *Client) From() *mail.Email {
	return c.from
}

// Send posts the message and treats any non-2xx response as an error.
func (c *Client) Send(ctx context.Context, message *mail.SGMailV3) error {
	if message == nil {
		return fmt.Errorf("sendgrid message required")
	}
	resp, err := c.api.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
