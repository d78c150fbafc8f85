package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/intent"
)

// Webhook providers.
const (
	ProviderGeneric  = "generic"
	ProviderSlack    = "slack"
	ProviderDiscord  = "discord"
	ProviderTelegram = "telegram"
)

const webhookTimeout = 10 * time.Second

// ErrMissingChatID indicates a telegram channel without a destination.
// The failure is immediate; no HTTP request is made.
var ErrMissingChatID = errors.New("telegram webhook requires chat_id")

type webhookClient struct {
	http *http.Client
}

func newWebhookClient() *webhookClient {
	return &webhookClient{
		http: &http.Client{Timeout: webhookTimeout},
	}
}

// deliver shapes the payload for the channel's provider and posts it.
func (c *webhookClient) deliver(ctx context.Context, wh config.WebhookConfig, res *intent.Result) error {
	payload, err := shapePayload(wh, res)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func shapePayload(wh config.WebhookConfig, res *intent.Result) ([]byte, error) {
	switch wh.Provider {
	case ProviderSlack:
		return json.Marshal(map[string]string{"text": messageText(res)})
	case ProviderDiscord:
		return json.Marshal(map[string]string{"content": messageText(res)})
	case ProviderTelegram:
		if wh.ChatID == "" {
			return nil, ErrMissingChatID
		}
		return json.Marshal(map[string]string{
			"chat_id": wh.ChatID,
			"text":    messageText(res),
		})
	default:
		// Generic channels get the full structured intent.
		return json.Marshal(res)
	}
}
