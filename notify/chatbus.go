package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// chatBusPayload mirrors the Slack-style incoming-webhook shape
// groblegark-gastown's slackbot posts to its bus: a single "text" field
// carrying the fully-formatted message body.
type chatBusPayload struct {
	Text string `json:"text"`
}

// ChatBusChannel posts the formatted change body to a chat incoming
// webhook (Slack-compatible "text" payload), grounded on
// groblegark-gastown's internal/slackbot bus-posting shape.
type ChatBusChannel struct {
	name       string
	url        string
	httpClient *http.Client
	enabled    bool
}

// NewChatBusChannel creates a channel posting to a chat incoming webhook
// at url.
func NewChatBusChannel(name, url string) *ChatBusChannel {
	return &ChatBusChannel{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		enabled:    url != "",
	}
}

func (c *ChatBusChannel) Name() string  { return c.name }
func (c *ChatBusChannel) Enabled() bool { return c.enabled }
func (c *ChatBusChannel) Disable()      { c.enabled = false }

func (c *ChatBusChannel) Send(ctx context.Context, change ChangeRecord, template string) Outcome {
	text := template
	if text == "" {
		text = formatBody(change)
	}
	text = truncate(text, 3000)

	body, err := json.Marshal(chatBusPayload{Text: text})
	if err != nil {
		return Outcome{Err: fmt.Errorf("%s: marshal payload: %w", c.name, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: fmt.Errorf("%s: build request: %w", c.name, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%s: %w", c.name, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Outcome{Err: fmt.Errorf("%s: chat bus responded %d", c.name, resp.StatusCode)}
	}

	return Outcome{OK: true, MessageID: fmt.Sprintf("%s-%d", c.name, time.Now().UnixNano())}
}
