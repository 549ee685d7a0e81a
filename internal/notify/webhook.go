package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/CZERTAINLY/leadseeker/internal/model"
)

// WebhookNotifier posts an Event as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookNotifier(cfg model.Webhook) (*WebhookNotifier, error) {
	if cfg.URL.IsZero() {
		return nil, errors.New("webhook url is empty")
	}
	return &WebhookNotifier{
		url:    cfg.URL.String(),
		token:  cfg.Token,
		client: &http.Client{},
	}, nil
}

func (n *WebhookNotifier) NotifyCompleted(ctx context.Context, snap model.Snapshot) error {
	return n.post(ctx, NewEvent(EventCompleted, snap))
}

func (n *WebhookNotifier) NotifyFailed(ctx context.Context, snap model.Snapshot) error {
	return n.post(ctx, NewEvent(EventFailed, snap))
}

func (n *WebhookNotifier) post(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := decodeWebhookResponse(resp); err != nil {
		return fmt.Errorf("webhook %s: %w", e.Event, err)
	}
	slog.DebugContext(ctx, "webhook delivered", slog.String("event", e.Event), slog.Int("status", resp.StatusCode))
	return nil
}

func decodeWebhookResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if contentType == "application/problem+json" {
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return fmt.Errorf("decoding json response failed: %w", err)
		}
		return fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return err
	}
	return fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
