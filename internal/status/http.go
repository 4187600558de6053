package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/psantana5/wfrunner/pkg/models"
	"github.com/psantana5/wfrunner/pkg/tls"
)

// HTTPConfig configures the HTTP status channel
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	TLS     tls.ClientConfig
}

// HTTPPublisher posts status events to the workflow controller
type HTTPPublisher struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPPublisher creates an HTTP status publisher
func NewHTTPPublisher(cfg HTTPConfig) (*HTTPPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("status URL is required for the http channel")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid status URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := tls.NewHTTPClient(cfg.TLS, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &HTTPPublisher{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

// Publish sends POST <url>/workflows/<run_id>/status. Any non-2xx response
// is an error.
func (p *HTTPPublisher) Publish(ctx context.Context, event models.StatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return p.fail(event, fmt.Errorf("failed to marshal event: %w", err))
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/status", p.baseURL, url.PathEscape(event.RunID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return p.fail(event, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail(event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return p.fail(event, fmt.Errorf("status channel returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Close releases idle connections
func (p *HTTPPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *HTTPPublisher) fail(event models.StatusEvent, err error) error {
	return &PublishError{Channel: "http", RunID: event.RunID, State: event.State, Err: err}
}
