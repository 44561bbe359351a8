package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebhookConfig configures an SMS gateway reached by a form POST. The
// layout (To, From, Body with basic auth) is the one most SMS HTTP APIs
// accept.
type WebhookConfig struct {
	URL      string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMSWebhook posts SMS messages to an HTTP gateway.
type SMSWebhook struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewSMSWebhook(cfg WebhookConfig) (*SMSWebhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: sms webhook requires a url")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("notify: sms webhook url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSWebhook{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *SMSWebhook) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("To", "+"+strings.TrimPrefix(msg.Recipient, "+"))
	form.Set("Body", msg.Body)
	if s.cfg.From != "" {
		form.Set("From", s.cfg.From)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: sms gateway status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
