// Package controller checks that the job controller is reachable before a
// run starts.
package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psantana5/wfrunner/pkg/logging"
	"github.com/psantana5/wfrunner/pkg/retry"
	"github.com/psantana5/wfrunner/pkg/tls"
)

// ConnectivityError is returned when the job controller never answered
type ConnectivityError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("job controller at %s not reachable after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Config configures the connectivity check
type Config struct {
	URL     string
	Retries int
	Timeout time.Duration
	Backoff time.Duration
	TLS     tls.ClientConfig
}

// Checker polls GET <url>/apispec
type Checker struct {
	url    string
	retry  retry.Config
	client *http.Client
	logger *logging.Logger
}

// NewChecker creates a checker. An empty URL yields a checker that always
// succeeds.
func NewChecker(cfg Config, logger *logging.Logger) (*Checker, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client, err := tls.NewHTTPClient(cfg.TLS, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	rc := retry.DefaultConfig()
	if cfg.Retries >= 0 {
		rc.MaxRetries = cfg.Retries
	}
	if cfg.Backoff > 0 {
		rc.InitialBackoff = cfg.Backoff
	}

	return &Checker{
		url:    strings.TrimRight(cfg.URL, "/"),
		retry:  rc,
		client: client,
		logger: logger,
	}, nil
}

// Enabled returns false when no controller URL is configured
func (c *Checker) Enabled() bool {
	return c != nil && c.url != ""
}

// Check returns nil once the controller answers with a 2xx status
func (c *Checker) Check(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	endpoint := c.url + "/apispec"
	attempts := 0

	err := retry.Do(ctx, c.retry, func() error {
		attempts++
		err := c.ping(ctx, endpoint)
		if err != nil {
			c.logger.Warn("Job controller not reachable", logging.Fields{
				"url":            endpoint,
				"attempt":        attempts,
				logging.ErrorKey: err,
			})
		}
		return err
	})
	if err != nil {
		return &ConnectivityError{URL: c.url, Attempts: attempts, Err: err}
	}

	c.logger.Debug("Job controller reachable", logging.Fields{"url": endpoint})
	return nil
}

func (c *Checker) ping(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
