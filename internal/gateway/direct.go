package gateway

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

const missingPhone = "missing phone number"

type smsSender interface {
	SendSingle(ctx context.Context, phone, message string, testMode bool) (*sms.SendResult, error)
}

type templateSender interface {
	SendTemplate(ctx context.Context, to, templateName, languageCode string, components []whatsapp.Component) (string, error)
}

// sendFunc performs one provider call and returns the provider message id.
type sendFunc func(ctx context.Context, item Item) (string, error)

// deliverSequentially calls send once per item, paced by limiter, and
// reports one outcome per item keyed by the recipient's phone.
func deliverSequentially(ctx context.Context, limiter *rate.Limiter, items []Item, send sendFunc) Result {
	outcomes := make([]domain.DeliveryResult, 0, len(items))

	for _, item := range items {
		out := domain.DeliveryResult{Phone: item.Recipient.Phone}

		switch {
		case strings.TrimSpace(item.Recipient.Phone) == "":
			out.Error = missingPhone
		default:
			if err := limiter.Wait(ctx); err != nil {
				out.Error = err.Error()
				break
			}
			id, err := send(ctx, item)
			if err != nil {
				out.Error = err.Error()
				break
			}
			out.Success = true
			out.MessageID = id
		}

		outcomes = append(outcomes, out)
	}

	return Result{Success: true, Outcomes: outcomes, Complete: true}
}

// SMSGateway sends one text message per recipient through the SMS provider.
type SMSGateway struct {
	client  smsSender
	limiter *rate.Limiter
}

func NewSMSGateway(client smsSender, limiter *rate.Limiter) *SMSGateway {
	return &SMSGateway{client: client, limiter: limiter}
}

func (g *SMSGateway) Channel() domain.Channel {
	return domain.ChannelSMS
}

func (g *SMSGateway) Deliver(ctx context.Context, batch Batch) Result {
	return deliverSequentially(ctx, g.limiter, batch.Items, func(ctx context.Context, item Item) (string, error) {
		res, err := g.client.SendSingle(ctx, item.Recipient.Phone, item.Message, batch.TestMode)
		if err != nil {
			return "", err
		}
		return res.MessageID, nil
	})
}

// TemplateGateway sends an approved WhatsApp template per recipient
// through the Business API.
type TemplateGateway struct {
	client  templateSender
	limiter *rate.Limiter
}

func NewTemplateGateway(client templateSender, limiter *rate.Limiter) *TemplateGateway {
	return &TemplateGateway{client: client, limiter: limiter}
}

func (g *TemplateGateway) Channel() domain.Channel {
	return domain.ChannelWhatsApp
}

func (g *TemplateGateway) Deliver(ctx context.Context, batch Batch) Result {
	return deliverSequentially(ctx, g.limiter, batch.Items, func(ctx context.Context, item Item) (string, error) {
		return g.client.SendTemplate(ctx, item.Recipient.Phone, batch.TemplateName, batch.Language, item.Components)
	})
}
