package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

var (
	ErrAuthExpired = errors.New("directory token expired and re-authentication failed")
	ErrUnavailable = errors.New("directory unavailable")
	ErrRejected    = errors.New("directory rejected request")
	ErrMalformed   = errors.New("directory returned a malformed contact list")
)

// RetryPolicy bounds contact reads. Transient failures are retried up to
// MaxAttempts with BackoffBase*2^attempt between attempts; an expired token
// gets exactly one re-authenticated read.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.BackoffBase << attempt
}

// Client reads the contact list from the directory.
type Client struct {
	tokens     *TokenManager
	httpClient *resty.Client
	url        string
	policy     RetryPolicy
}

func NewClient(cfg environments.DirectoryConfig, tokens *TokenManager) *Client {
	// Redirects are returned as-is so they can be classified.
	client := resty.New().
		SetTimeout(cfg.ReadTimeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		tokens:     tokens,
		httpClient: client,
		url:        cfg.ContactsURL,
		policy:     RetryPolicy{MaxAttempts: attempts, BackoffBase: cfg.BackoffBase},
	}
}

// FetchContacts returns the raw directory contact list.
func (c *Client) FetchContacts(ctx context.Context) ([]RawContact, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}

	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		status, body, readErr := c.read(ctx, token)

		switch Classify(status, body, readErr) {
		case OK:
			return decodeContacts(body)

		case Fatal:
			return nil, fmt.Errorf("%w: %s", ErrRejected, describe(status, body, nil))

		case AuthExpired:
			logger.Warnf("Directory session expired (status %d), re-authenticating", status)
			c.tokens.Invalidate()

			fresh, err := c.tokens.Token(ctx, true)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrAuthExpired, err)
			}

			status, body, readErr = c.read(ctx, fresh)
			if Classify(status, body, readErr) == OK {
				return decodeContacts(body)
			}
			return nil, fmt.Errorf("%w: %s", ErrAuthExpired, describe(status, body, readErr))

		case Transient:
			lastErr = errors.New(describe(status, body, readErr))
			logger.Warnf("Directory read attempt %d failed: %v", attempt+1, lastErr)

			if attempt == 0 {
				c.tokens.Invalidate()
				fresh, err := c.tokens.Token(ctx, true)
				if err == nil {
					token = fresh
					continue
				}
				logger.Warnf("Precautionary token refresh failed: %v", err)
			}

			if attempt < c.policy.MaxAttempts-1 {
				if err := wait(ctx, c.policy.backoff(attempt)); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
				}
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, c.policy.MaxAttempts, lastErr)
}

func (c *Client) read(ctx context.Context, token string) (int, []byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(c.url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

func describe(status int, body []byte, err error) string {
	if err != nil {
		return err.Error()
	}
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return fmt.Sprintf("status %d: %s", status, snippet)
}

// decodeContacts accepts {payload:{data:[...]}}, {payload:[...]} or a bare list.
// A list that does not decode is an error, never an empty result.
func decodeContacts(body []byte) ([]RawContact, error) {
	var list []RawContact
	if isList(body) {
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return list, nil
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Payload) == 0 {
		return []RawContact{}, nil
	}

	if isList(envelope.Payload) {
		if err := json.Unmarshal(envelope.Payload, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return list, nil
	}

	var nested struct {
		Data []RawContact `json:"data"`
	}
	if err := json.Unmarshal(envelope.Payload, &nested); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if nested.Data == nil {
		return []RawContact{}, nil
	}
	return nested.Data, nil
}

func isList(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
