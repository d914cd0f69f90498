package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lumenlearn/pulse/internal/model"
)

// Notifier delivers an alert to one channel. Sends are best effort and
// independently failing; a dead channel never blocks the others.
type Notifier interface {
	Send(ctx context.Context, alert *model.AlertInstance) error
}

// EmailNotifier sends plain-text alert mail through an SMTP relay.
type EmailNotifier struct {
	Addr string // host:port of the relay
	From string
	To   []string
}

func (n *EmailNotifier) Send(ctx context.Context, alert *model.AlertInstance) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.To, ", "))
	fmt.Fprintf(&msg, "Subject: [%s] %s\r\n", strings.ToUpper(string(alert.Severity)), alert.RuleName)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", alert.Message)
	fmt.Fprintf(&msg, "Metric:    %s\r\n", alert.Metric)
	fmt.Fprintf(&msg, "Value:     %.2f\r\n", alert.Value)
	fmt.Fprintf(&msg, "Threshold: %.2f\r\n", alert.Threshold)
	fmt.Fprintf(&msg, "Triggered: %s\r\n", alert.TriggeredAt.Format(time.RFC3339))

	if err := smtp.SendMail(n.Addr, nil, n.From, n.To, msg.Bytes()); err != nil {
		return fmt.Errorf("sending alert mail: %w", err)
	}
	return nil
}

// WebhookNotifier POSTs the alert as JSON, retrying transient failures
// with exponential backoff.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func (n *WebhookNotifier) Send(ctx context.Context, alert *model.AlertInstance) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	return nil
}

// SlackNotifier posts a formatted message to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (n *SlackNotifier) Send(ctx context.Context, alert *model.AlertInstance) error {
	payload := map[string]string{
		"text": fmt.Sprintf(":rotating_light: *%s* (%s)\n%s\nmetric `%s` = %.2f (threshold %.2f)",
			alert.RuleName, alert.Severity, alert.Message, alert.Metric, alert.Value, alert.Threshold),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
