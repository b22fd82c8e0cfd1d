// Package agent implements the HTTP resync protocol client toward the
// agent, which owns the authoritative tool inventory.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/NewbieTed/Quip-Bot-sub003/internal/domain/resync"
)

// Client requests full inventory snapshots with bounded retries and
// exponential backoff. It never panics past this boundary; exhausting the
// attempt budget surfaces as an error the recovery manager records.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	resyncPath  string
	maxAttempts int
	initialWait time.Duration
	logger      *slog.Logger

	// sleep waits for d or until ctx is cancelled. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	ResyncPath   string
	HTTPTimeout  time.Duration
	MaxRetries   int
	InitialDelay time.Duration
}

// New creates a resync protocol client.
func New(opts Options, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: opts.HTTPTimeout},
		baseURL:     opts.BaseURL,
		resyncPath:  opts.ResyncPath,
		maxAttempts: opts.MaxRetries,
		initialWait: opts.InitialDelay,
		logger:      logger,
		sleep:       ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestInventory performs up to the configured number of HTTP attempts.
// Attempt 1 is immediate; attempt k waits initial * 2^(k-2) first. The first
// successful response short-circuits the rest. Cancellation during an
// inter-attempt delay aborts the whole operation.
func (c *Client) RequestInventory(ctx context.Context, reason string) (*resync.InventoryResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if delay := resync.Backoff(c.initialWait, attempt); delay > 0 {
			c.logger.Debug("waiting before resync retry", "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				c.logger.Warn("resync aborted during retry delay", "attempt", attempt, "error", err)
				return nil, fmt.Errorf("resync interrupted: %w", err)
			}
		}

		resp, err := c.requestOnce(ctx, reason)
		if err == nil {
			c.logger.Info("received tool inventory from agent",
				"attempt", attempt, "tools", len(resp.CurrentTools))
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("resync attempt failed",
			"attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("resync interrupted: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("all %d resync attempts failed: %w", c.maxAttempts, lastErr)
}

// requestOnce performs a single HTTP round trip with a fresh requestId.
func (c *Client) requestOnce(ctx context.Context, reason string) (*resync.InventoryResponse, error) {
	req := resync.Request{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal resync request: %w", err)
	}

	url := c.baseURL + c.resyncPath
	c.logger.Debug("sending resync request", "url", url, "request_id", req.RequestID, "reason", reason)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build resync request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("resync request %s: %w", req.RequestID, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("resync request %s: agent returned status %d", req.RequestID, httpResp.StatusCode)
	}

	var inv resync.InventoryResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&inv); err != nil {
		return nil, fmt.Errorf("decode inventory response for %s: %w", req.RequestID, err)
	}
	// An empty list is a legitimate zero-tool state; a null/absent list is a
	// protocol violation.
	if inv.CurrentTools == nil {
		return nil, fmt.Errorf("inventory response %s has no currentTools list", req.RequestID)
	}
	return &inv, nil
}
