package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

const authHeader = "x-relay-auth-key"

// Client posts aggregated batches to a relay webhook. Requests are never
// retried: a relay may have fanned out part of a batch before failing.
type Client struct {
	httpClient *resty.Client
}

func NewRelayClient(cfg environments.RelayConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.AuthKey != "" {
		client.SetHeader(authHeader, cfg.AuthKey)
	}

	return &Client{httpClient: client}
}

// SendBulk posts the request to url. Transport failures, non-2xx statuses and
// undecodable bodies are errors; an empty body decodes as an empty response.
func (c *Client) SendBulk(ctx context.Context, url string, payload domain.RelayRequest) (*domain.RelayResponse, error) {
	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	logger.Infof("Relay request to %s for %d recipients completed in %v (status: %d)",
		url, payload.TotalRecipients, duration, resp.StatusCode())

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), truncate(resp.String(), 500))
	}

	var relayResp domain.RelayResponse
	body := strings.TrimSpace(resp.String())
	if body == "" {
		return &relayResp, nil
	}

	if err := json.Unmarshal([]byte(body), &relayResp); err != nil {
		return nil, fmt.Errorf("failed to decode relay response: %w", err)
	}

	return &relayResp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
