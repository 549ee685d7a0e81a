// Package upstream opens streaming searches against the company search
// provider. The response body is handed over unread; framing and parsing
// is the job of package sse.
package upstream

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
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"

	"github.com/tidwall/gjson"
)

const (
	eventStream = "text/event-stream"
	problemJSON = "application/problem+json"

	maxErrorBody = 4 << 10
)

var ErrOpenTimeout = errors.New("search stream not opened in time")

// StatusError is returned when the provider refuses to open a stream.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("status code: %d, detail: %s", e.StatusCode, e.Detail)
}

type Client struct {
	cfg     model.Config
	timeout time.Duration
	client  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func New(cfg model.Config, opts ...Option) (*Client, error) {
	if cfg.Upstream.URL.IsZero() {
		return nil, errors.New("upstream url is not configured")
	}
	c := &Client{
		cfg:     cfg,
		timeout: cfg.Upstream.OpenTimeout(),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type searchRequest struct {
	model.SearchFilters
	PageSize int  `json:"pageSize,omitempty"`
	Stream   bool `json:"stream"`
}

// Open starts the streaming call of kind. Cancelling ctx aborts the call
// at any point, including reads from the returned body. The open timeout
// only covers the time until response headers arrive.
func (c *Client) Open(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (io.ReadCloser, error) {
	path, err := c.cfg.KindPath(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(searchRequest{
		SearchFilters: filters,
		PageSize:      c.cfg.Upstream.PageSize,
		Stream:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, func() { cancel(ErrOpenTimeout) })
	}

	requestURL := c.cfg.Upstream.URL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		cancel(nil)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", eventStream)
	req.Header.Set("Cache-Control", "no-cache")
	if c.cfg.Upstream.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Upstream.Token)
	}

	resp, err := c.client.Do(req)
	if timer != nil && !timer.Stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel(nil)
		return nil, ErrOpenTimeout
	}
	if err != nil {
		cancel(nil)
		return nil, err
	}

	if err := checkResponse(resp); err != nil {
		_ = resp.Body.Close()
		cancel(nil)
		return nil, err
	}
	slog.DebugContext(ctx, "search stream opened",
		slog.String("url", requestURL.Redacted()),
		slog.Int("status", resp.StatusCode))

	return &body{ReadCloser: resp.Body, cancel: cancel}, nil
}

func checkResponse(resp *http.Response) error {
	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if contentType != eventStream {
			return fmt.Errorf("expected `%s` content type, got: %q", eventStream, contentType)
		}
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	if contentType == problemJSON || contentType == "application/json" {
		for _, key := range []string{"detail", "title", "error", "message"} {
			if v := gjson.GetBytes(raw, key); v.Type == gjson.String && v.Str != "" {
				return &StatusError{StatusCode: resp.StatusCode, Detail: v.Str}
			}
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: string(bytes.TrimSpace(raw))}
}

// body releases the request context together with the response.
type body struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (b *body) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}
