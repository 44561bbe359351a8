package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridConfig configures the email sender.
type SendGridConfig struct {
	APIKey   string
	From     string
	FromName string
	// Host overrides the API host; tests point it at a local server.
	Host string
}

// SendGrid delivers email messages through the SendGrid v3 mail API.
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGrid(cfg SendGridConfig) (*SendGrid, error) {
	if cfg.APIKey == "" || cfg.From == "" {
		return nil, errors.New("notify: sendgrid requires api key and from address")
	}
	host := cfg.Host
	if host == "" {
		host = sendGridHost
	}

	req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", host)
	req.Method = http.MethodPost

	return &SendGrid{
		client: &sendgrid.Client{Request: req},
		from:   mail.NewEmail(cfg.FromName, cfg.From),
	}, nil
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail("", msg.Recipient)
	message := mail.NewSingleEmail(s.from, msg.Subject, to, msg.Body, "<p>"+html.EscapeString(msg.Body)+"</p>")

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: sendgrid status %d", ErrRejected, response.StatusCode)
	}
	return nil
}
