package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// ErrNoProvider marks a channel with no configured credentials. The
// recipient is recorded as no_provider and dispatch continues.
var ErrNoProvider = errors.New("channel provider not configured")

// Channel delivers one rendered message to one recipient. Send returns nil
// only on provider acknowledgement within the channel timeout.
type Channel interface {
	Send(ctx context.Context, r Recipient, m Message) error
}

// EmailChannel sends over SMTP.
type EmailChannel struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

func (c *EmailChannel) Send(ctx context.Context, r Recipient, m Message) error {
	if c.Host == "" || c.From == "" {
		return ErrNoProvider
	}

	msg := gomail.NewMsg()
	if err := msg.From(c.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(r.Address); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, m.HTML)

	opts := []gomail.Option{
		gomail.WithPort(c.Port),
		gomail.WithTimeout(c.Timeout),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if c.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(c.User),
			gomail.WithPassword(c.Password))
	}
	client, err := gomail.NewClient(c.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// WebhookChannel posts the message as JSON to the recipient address.
type WebhookChannel struct {
	Timeout time.Duration
	client  *http.Client
}

func (c *WebhookChannel) Send(ctx context.Context, r Recipient, m Message) error {
	if c.client == nil {
		c.client = &http.Client{Timeout: c.Timeout}
	}
	payload, err := json.Marshal(struct {
		Recipient string `json:"recipient"`
		Message
	}{Recipient: r.Name, Message: m})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Address, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
