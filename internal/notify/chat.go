package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ChatNotifier posts Slack-compatible {"text": ...} messages to an incoming
// webhook. A notifier without URL is disabled and drops messages.
type ChatNotifier struct {
	url    string
	client *http.Client
}

// NewChatNotifier creates a ChatNotifier for webhookURL.
func NewChatNotifier(webhookURL string) *ChatNotifier {
	return &ChatNotifier{
		url:    webhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *ChatNotifier) Enabled() bool {
	return c != nil && c.url != ""
}

// Notify posts text to the webhook.
func (c *ChatNotifier) Notify(ctx context.Context, text string) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return eris.Wrap(err, "notify: marshal chat message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: chat webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: chat webhook returned status %d", resp.StatusCode)
	}
	zap.L().Debug("notify: chat message sent")
	return nil
}
