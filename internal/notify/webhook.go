package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel posts JSON messages to a messaging gateway, for example a
// WhatsApp bridge that expects {phone_number, message}.
type WebhookChannel struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	Subject     string `json:"subject,omitempty"`
	MessageType string `json:"message_type"`
	EventID     uint   `json:"event_id"`
	SiteID      string `json:"site_id,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
}

func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, recipient string, msg Message) DeliveryResult {
	payload, err := json.Marshal(webhookPayload{
		PhoneNumber: recipient,
		Message:     msg.Text,
		Subject:     msg.Subject,
		MessageType: string(msg.Type),
		EventID:     msg.EventID,
		SiteID:      msg.SiteID,
	})
	if err != nil {
		return failed(fmt.Errorf("%w: failed to marshal webhook message: %v", ErrPermanent, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return failed(fmt.Errorf("%w: %v", ErrPermanent, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.DeliveryKey())

	resp, err := w.client.Do(req)
	if err != nil {
		return failed(fmt.Errorf("failed to send webhook message: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			err = fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return failed(err)
	}

	var out webhookResponse
	if len(body) > 0 && json.Unmarshal(body, &out) == nil {
		if out.MessageID != "" {
			return delivered(out.MessageID)
		}
		return delivered(out.ID)
	}
	return delivered("")
}
