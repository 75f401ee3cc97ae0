package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
	"github.com/onurcolak/bulk-dispatch-service/internal/templating"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

const (
	unknownRecipient = "Unknown"
	smsSingleSubject = "SMS Individual"
)

// ErrNotDelivered is returned by single sends whose one message failed. The
// row is still recorded.
var ErrNotDelivered = errors.New("message was not delivered")

type logWriter interface {
	CreateMany(ctx context.Context, logs []domain.MessageLog) ([]domain.MessageLog, error)
}

type creditsReader interface {
	GetCredits(ctx context.Context) (*sms.Credits, error)
}

type templateCatalog interface {
	GetTemplates(ctx context.Context, status string) ([]whatsapp.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*whatsapp.Template, error)
	IsConfigured() bool
	CanSend() bool
	DefaultLanguage() string
}

// recordDirect persists rows of a synchronous send, already resolved from
// the gateway's per-item outcomes.
func recordDirect(
	ctx context.Context,
	repo logWriter,
	batchID string,
	channel domain.Channel,
	subject string,
	items []gateway.Item,
	res gateway.Result,
) (*domain.BatchSummary, error) {
	rows := make([]domain.MessageLog, 0, len(items))
	summary := &domain.BatchSummary{Total: len(items), BatchID: batchID}

	for i, item := range items {
		row := domain.MessageLog{
			RecipientName:  strings.TrimSpace(item.Recipient.Name),
			RecipientPhone: domain.StringPtr(item.Recipient.Phone),
			RecipientEmail: domain.StringPtr(item.Recipient.Email),
			Subject:        domain.StringPtr(subject),
			MessageContent: item.Message,
			Channel:        channel,
			Status:         domain.StatusFailed,
			Attachments:    domain.Attachments{},
			BatchID:        &batchID,
		}

		switch {
		case res.DispatchErr != nil:
			row.ErrorMessage = domain.StringPtr(dispatchFailedPrefix + res.DispatchErr.Error())
		case i < len(res.Outcomes) && res.Outcomes[i].Success:
			row.Status = domain.StatusSent
		case i < len(res.Outcomes):
			row.ErrorMessage = domain.StringPtr(res.Outcomes[i].Error)
		default:
			row.ErrorMessage = domain.StringPtr(reasonDeliveryFailed)
		}

		if row.Status == domain.StatusSent {
			summary.Sent++
		} else {
			summary.Failed++
		}
		rows = append(rows, row)
	}

	created, err := repo.CreateMany(context.WithoutCancel(ctx), rows)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s batch: %w", channel, err)
	}
	summary.Rows = created

	return summary, nil
}

// SMSService sends personalized text messages one by one and records the
// final outcome of each.
type SMSService struct {
	repo    logWriter
	gateway gateway.Gateway
	credits creditsReader
}

func NewSMSService(repo logWriter, gw gateway.Gateway, credits creditsReader) *SMSService {
	return &SMSService{repo: repo, gateway: gw, credits: credits}
}

func (s *SMSService) SendBulk(ctx context.Context, req domain.SMSBulkRequest) (*domain.BatchSummary, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	batchID := uuid.NewString()
	items := make([]gateway.Item, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		items = append(items, gateway.Item{Recipient: r, Message: templating.Render(req.Content, r)})
	}

	res := s.gateway.Deliver(ctx, gateway.Batch{ID: batchID, Items: items, Content: req.Content, TestMode: req.TestMode})

	summary, err := recordDirect(ctx, s.repo, batchID, domain.ChannelSMS, "", items, res)
	if err != nil {
		return nil, err
	}

	logger.Infof("SMS batch %s complete: %d sent, %d failed out of %d", batchID, summary.Sent, summary.Failed, summary.Total)
	return summary, nil
}

// SendSingle sends the message unchanged to one phone and records one row.
// A failed send returns the recorded row together with ErrNotDelivered.
func (s *SMSService) SendSingle(ctx context.Context, req domain.SMSSingleRequest) (*domain.MessageLog, error) {
	item := gateway.Item{
		Recipient: domain.Recipient{Name: nameOrUnknown(req.RecipientName), Phone: strings.TrimSpace(req.Phone)},
		Message:   req.Message,
	}

	batchID := uuid.NewString()
	res := s.gateway.Deliver(ctx, gateway.Batch{ID: batchID, Items: []gateway.Item{item}, Content: req.Message, TestMode: req.TestMode})

	summary, err := recordDirect(ctx, s.repo, batchID, domain.ChannelSMS, smsSingleSubject, []gateway.Item{item}, res)
	if err != nil {
		return nil, err
	}
	return singleOutcome(summary)
}

func (s *SMSService) GetCredits(ctx context.Context) (*sms.Credits, error) {
	return s.credits.GetCredits(ctx)
}

// TemplateService sends approved WhatsApp templates with per-recipient
// variables bound from recipient fields.
type TemplateService struct {
	repo    logWriter
	gateway gateway.Gateway
	catalog templateCatalog
}

func NewTemplateService(repo logWriter, gw gateway.Gateway, catalog templateCatalog) *TemplateService {
	return &TemplateService{repo: repo, gateway: gw, catalog: catalog}
}

// SendTemplateSingle sends a template to one phone. Each non-empty variable
// becomes a named body parameter.
func (s *TemplateService) SendTemplateSingle(ctx context.Context, req domain.TemplateSingleRequest) (*domain.MessageLog, error) {
	language := strings.TrimSpace(req.LanguageCode)
	if language == "" {
		language = s.catalog.DefaultLanguage()
	}

	content := "Template: " + req.TemplateName
	item := gateway.Item{
		Recipient:  domain.Recipient{Name: nameOrUnknown(req.RecipientName), Phone: strings.TrimSpace(req.Phone)},
		Message:    content,
		Components: namedComponents(req.Variables),
	}

	batchID := uuid.NewString()
	res := s.gateway.Deliver(ctx, gateway.Batch{
		ID:           batchID,
		Items:        []gateway.Item{item},
		Content:      content,
		TemplateName: req.TemplateName,
		Language:     language,
	})

	summary, err := recordDirect(ctx, s.repo, batchID, domain.ChannelWhatsApp, "", []gateway.Item{item}, res)
	if err != nil {
		return nil, err
	}
	return singleOutcome(summary)
}

func (s *TemplateService) ListTemplates(ctx context.Context, status string) ([]templating.TemplateView, error) {
	templates, err := s.catalog.GetTemplates(ctx, strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, err
	}

	views := make([]templating.TemplateView, 0, len(templates))
	for _, tpl := range templates {
		views = append(views, templating.Describe(tpl))
	}
	return views, nil
}

type ConfigStatus struct {
	TemplatesConfigured bool   `json:"templatesConfigured"`
	SendingConfigured   bool   `json:"sendingConfigured"`
	DefaultLanguage     string `json:"defaultLanguage"`
}

func (s *TemplateService) ConfigStatus() ConfigStatus {
	return ConfigStatus{
		TemplatesConfigured: s.catalog.IsConfigured(),
		SendingConfigured:   s.catalog.CanSend(),
		DefaultLanguage:     s.catalog.DefaultLanguage(),
	}
}

// SendTemplateBulk looks the template up once, binds variables per
// recipient and sends sequentially. When the template cannot be read the
// messages go out without variables.
func (s *TemplateService) SendTemplateBulk(ctx context.Context, req domain.TemplateBulkRequest) (*domain.BatchSummary, error) {
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	def := templating.Definition{Name: req.TemplateName}
	tpl, err := s.catalog.GetTemplateByName(ctx, req.TemplateName)
	switch {
	case err != nil:
		logger.Warnf("Could not fetch template %s, sending without variables: %v", req.TemplateName, err)
	case tpl == nil:
		logger.Warnf("Template %s not found, sending without variables", req.TemplateName)
	default:
		def = templating.ParseDefinition(*tpl)
		logger.Infof("Template %s variables (in order): %v", req.TemplateName, def.Placeholders)
	}

	binder := templating.NewBinder(def, req.VariableMapping)
	content := "Template: " + req.TemplateName

	batchID := uuid.NewString()
	items := make([]gateway.Item, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		items = append(items, gateway.Item{
			Recipient:  r,
			Message:    content,
			Components: binder.Components(r),
		})
	}

	language := strings.TrimSpace(req.LanguageCode)
	if language == "" {
		language = s.catalog.DefaultLanguage()
	}

	res := s.gateway.Deliver(ctx, gateway.Batch{
		ID:           batchID,
		Items:        items,
		Content:      content,
		TemplateName: req.TemplateName,
		Language:     language,
	})

	summary, err := recordDirect(ctx, s.repo, batchID, domain.ChannelWhatsApp, "", items, res)
	if err != nil {
		return nil, err
	}

	logger.Infof("Template batch %s complete: %d sent, %d failed out of %d", batchID, summary.Sent, summary.Failed, summary.Total)
	return summary, nil
}

func nameOrUnknown(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return unknownRecipient
}

// namedComponents builds one body component from vars, in key order.
func namedComponents(vars map[string]string) []whatsapp.Component {
	keys := make([]string, 0, len(vars))
	for k, v := range vars {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	slices.Sort(keys)

	params := make([]whatsapp.Parameter, 0, len(keys))
	for _, k := range keys {
		params = append(params, whatsapp.Parameter{Type: "text", ParameterName: k, Text: vars[k]})
	}
	return []whatsapp.Component{{Type: "body", Parameters: params}}
}

func singleOutcome(summary *domain.BatchSummary) (*domain.MessageLog, error) {
	if len(summary.Rows) == 0 {
		return nil, fmt.Errorf("single send recorded no row")
	}
	row := summary.Rows[0]
	if row.Status != domain.StatusSent {
		return &row, fmt.Errorf("%w: %s", ErrNotDelivered, domain.StringValue(row.ErrorMessage))
	}
	return &row, nil
}
