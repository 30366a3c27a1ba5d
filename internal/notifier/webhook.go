package notifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook payload formats.
const (
	WebhookFormatJSON  = "json"
	WebhookFormatSlack = "slack"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	URL        string            `yaml:"url"`
	Format     string            `yaml:"format"` // json (default) or slack
	Timeout    time.Duration     `yaml:"timeout"`
	RetryCount int               `yaml:"retry_count"`
	Headers    map[string]string `yaml:"headers"`
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook URL must be an absolute http or https URL")
	}
	switch c.Format {
	case "", WebhookFormatJSON, WebhookFormatSlack:
	default:
		return fmt.Errorf("unknown webhook format %q", c.Format)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	return nil
}

// WebhookNotifier posts notifications to an HTTP endpoint.
type WebhookNotifier struct {
	config WebhookConfig
	client *resty.Client
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Format == "" {
		config.Format = WebhookFormatJSON
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetHeader("Content-Type", "application/json").
		SetHeaders(config.Headers)

	return &WebhookNotifier{config: config, client: client}, nil
}

// Name returns "webhook".
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts n to the configured URL.
func (w *WebhookNotifier) Send(ctx context.Context, n *Notification) error {
	var payload any = n
	if w.config.Format == WebhookFormatSlack {
		payload = buildSlackPayload(n)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.config.URL)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode(), truncate(resp.String(), 1024))
	}
	return nil
}

// Close is a no-op for webhook notifier.
func (w *WebhookNotifier) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func buildSlackPayload(n *Notification) slackMessage {
	emoji := kindEmoji(n.Kind)

	return slackMessage{
		Text: n.Body.SMS,
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{
					Type:  "plain_text",
					Text:  fmt.Sprintf("%s %s", emoji, n.Subject),
					Emoji: true,
				},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Patient:*\n%s", n.PatientID)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Type:*\n%s %s", emoji, strings.ToUpper(string(n.Kind)))},
				},
			},
			{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("```%s```", truncate(n.Body.Default, 2900)),
				},
			},
			{
				Type: "context",
				Elements: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("Alert ID: %s", n.AlertID)},
				},
			},
		},
	}
}

// truncate truncates a string to max bytes with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
