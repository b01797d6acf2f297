package recalc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"impact/internal/core"
	"impact/internal/log"
)

// HTTPClient calls the recompute endpoint with a per-user bearer token.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	tokens   TokenSource
	logger   *log.Logger
}

func NewHTTPClient(endpoint string, tokens TokenSource, timeout time.Duration, logger *log.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentRecalc),
	}
}

// Recalculate asks the endpoint to recompute the user's aggregate. Every
// failure is reported as core.ErrRecalculation.
func (c *HTTPClient) Recalculate(ctx context.Context, userID string, reason Reason) (core.ImpactAggregate, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.ImpactAggregate{}, core.Recalculation(err)
	}
	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("issue token: %w", err))
	}

	body, err := json.Marshal(Request{Source: reason})
	if err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("post %s: %w", c.endpoint, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return core.ImpactAggregate{}, core.Recalculation(fmt.Errorf("decode response: %w", err))
	}
	if !out.Success || out.Data == nil {
		msg := out.Error
		if msg == "" {
			msg = "endpoint reported failure"
		}
		return core.ImpactAggregate{}, core.Recalculation(errors.New(msg))
	}

	fields := log.NewFields().
		WithOperation(log.OpRecalc).
		WithUser(userID).
		WithReason(string(reason)).
		WithDuration(time.Since(start))
	if out.Meta != nil {
		fields["server_duration_ms"] = out.Meta.Duration
	}
	c.logger.DebugContext(ctx, "Recalculation completed", fields.ToSlice()...)

	return out.Data.Aggregate(), nil
}

// Disabled is used when no endpoint is configured. Every call fails.
type Disabled struct{}

func (Disabled) Recalculate(context.Context, string, Reason) (core.ImpactAggregate, error) {
	return core.ImpactAggregate{}, core.Recalculation(errors.New("recalculation endpoint not configured"))
}
