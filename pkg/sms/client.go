package sms

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/phone"
)

var ErrNotConfigured = errors.New("sms provider is not configured")

type sendRecipient struct {
	MSISDN string `json:"msisdn"`
}

type sendRequest struct {
	Message   string          `json:"message"`
	Sender    string          `json:"tpoa"`
	Recipient []sendRecipient `json:"recipient"`
	Test      string          `json:"test,omitempty"`
}

type providerResponse struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	SubID   string `json:"subid"`
	Credits any    `json:"credits"`
}

// ok reports whether the provider accepted the message; the code arrives
// either as "0" or 0.
func (r providerResponse) ok() bool {
	switch v := r.Code.(type) {
	case string:
		return v == "0"
	case float64:
		return v == 0
	}
	return false
}

type SendResult struct {
	Phone     string
	MessageID string
}

type Credits struct {
	Credits any            `json:"credits"`
	Raw     map[string]any `json:"response"`
}

// Client talks to the LabsMobile JSON API.
type Client struct {
	httpClient *resty.Client
	cfg        environments.SMSConfig
}

func NewClient(cfg environments.SMSConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.Username, cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if !cfg.SSLVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}

	return &Client{httpClient: client, cfg: cfg}
}

func (c *Client) IsConfigured() bool {
	return c.cfg.Username != "" && c.cfg.Token != "" && c.cfg.Sender != ""
}

// SendSingle sends one text message. A provider rejection is returned as an
// error carrying the provider's message.
func (c *Client) SendSingle(ctx context.Context, rawPhone, message string, testMode bool) (*SendResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	msisdn := phone.Normalize(rawPhone)
	payload := sendRequest{
		Message:   message,
		Sender:    c.cfg.Sender,
		Recipient: []sendRecipient{{MSISDN: msisdn}},
	}
	if testMode {
		payload.Test = "1"
	}

	logger.Debugf("Sending SMS to %s", msisdn)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}

	var data providerResponse
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, fmt.Errorf("unexpected provider response (status %d): %w", resp.StatusCode(), err)
	}

	if !data.ok() {
		msg := strings.TrimSpace(data.Message)
		if msg == "" {
			msg = "unknown provider error"
		}
		return nil, fmt.Errorf("provider rejected message (code %v): %s", data.Code, msg)
	}

	return &SendResult{Phone: msisdn, MessageID: data.SubID}, nil
}

// GetCredits returns the account balance as reported by the provider.
func (c *Client) GetCredits(ctx context.Context) (*Credits, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var raw map[string]any
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(c.cfg.BalanceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	return &Credits{Credits: raw["credits"], Raw: raw}, nil
}
