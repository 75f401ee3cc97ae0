package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/phone"
)

var (
	ErrNotConfigured = errors.New("whatsapp api credentials not configured")
	ErrNoPhoneNumber = errors.New("whatsapp phone number id not configured")
)

const templateFields = "name,status,category,language,components,id"

type Button struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type TemplateComponent struct {
	Type    string         `json:"type"`
	Format  string         `json:"format,omitempty"`
	Text    string         `json:"text,omitempty"`
	Example map[string]any `json:"example,omitempty"`
	Buttons []Button       `json:"buttons,omitempty"`
}

// Template is a message template as returned by the Graph API.
type Template struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Category   string              `json:"category"`
	Language   string              `json:"language"`
	Components []TemplateComponent `json:"components"`
}

// Parameter is one bound value of a template component.
type Parameter struct {
	Type          string `json:"type"`
	ParameterName string `json:"parameter_name,omitempty"`
	Text          string `json:"text"`
}

type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters"`
}

type language struct {
	Code string `json:"code"`
}

type templatePayload struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type messageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type templateList struct {
	Data []Template `json:"data"`
}

// Client talks to the WhatsApp Business (Graph) API.
type Client struct {
	httpClient *resty.Client
	cfg        environments.WhatsAppConfig
}

func NewClient(cfg environments.WhatsAppConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{httpClient: client, cfg: cfg}
}

func (c *Client) IsConfigured() bool {
	return c.cfg.AccessToken != "" && c.cfg.BusinessAccountID != ""
}

func (c *Client) CanSend() bool {
	return c.cfg.AccessToken != "" && c.cfg.PhoneNumberID != ""
}

func (c *Client) DefaultLanguage() string {
	return c.cfg.DefaultLanguage
}

// GetTemplates lists templates of the business account, optionally filtered
// by status (APPROVED, PENDING, REJECTED).
func (c *Client) GetTemplates(ctx context.Context, status string) ([]Template, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("limit", "100").
		SetQueryParam("fields", templateFields).
		SetResult(&templateList{}).
		SetError(&apiError{})
	if status != "" {
		req.SetQueryParam("status", status)
	}

	resp, err := req.Get(fmt.Sprintf("/%s/message_templates", c.cfg.BusinessAccountID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch templates: %s", errorMessage(resp))
	}

	return resp.Result().(*templateList).Data, nil
}

// GetTemplateByName returns nil, nil when no template has that name.
func (c *Client) GetTemplateByName(ctx context.Context, name string) (*Template, error) {
	templates, err := c.GetTemplates(ctx, "")
	if err != nil {
		return nil, err
	}

	for i := range templates {
		if templates[i].Name == name {
			return &templates[i], nil
		}
	}
	return nil, nil
}

// SendTemplate sends an approved template to one number and returns the
// provider message id.
func (c *Client) SendTemplate(ctx context.Context, to, templateName, languageCode string, components []Component) (string, error) {
	if c.cfg.PhoneNumberID == "" {
		return "", ErrNoPhoneNumber
	}
	if languageCode == "" {
		languageCode = c.cfg.DefaultLanguage
	}

	formatted := phone.Normalize(to)
	payload := messageRequest{
		MessagingProduct: "whatsapp",
		To:               formatted,
		Type:             "template",
		Template: templatePayload{
			Name:       templateName,
			Language:   language{Code: languageCode},
			Components: components,
		},
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&messageResponse{}).
		SetError(&apiError{}).
		Post(fmt.Sprintf("/%s/messages", c.cfg.PhoneNumberID))
	if err != nil {
		return "", fmt.Errorf("connection error: %w", err)
	}

	if resp.IsError() {
		msg := errorMessage(resp)
		logger.Errorf("Failed to send template %s to %s (status %d): %s", templateName, formatted, resp.StatusCode(), msg)
		return "", errors.New(msg)
	}

	result := resp.Result().(*messageResponse)
	var messageID string
	if len(result.Messages) > 0 {
		messageID = result.Messages[0].ID
	}

	logger.Infof("Template %s sent to %s (message id %s)", templateName, formatted, messageID)
	return messageID, nil
}

func errorMessage(resp *resty.Response) string {
	if e, ok := resp.Error().(*apiError); ok && e.Error.Message != "" {
		return e.Error.Message
	}
	return fmt.Sprintf("unexpected status code: %d", resp.StatusCode())
}
