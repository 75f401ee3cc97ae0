package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

type relaySender interface {
	SendBulk(ctx context.Context, url string, payload domain.RelayRequest) (*domain.RelayResponse, error)
}

// RelayGateway sends the whole batch in one request to a relay webhook,
// which fans it out and reports back asynchronously.
type RelayGateway struct {
	channel        domain.Channel
	url            string
	defaultSubject string
	client         relaySender
}

func NewWhatsAppRelay(client relaySender, url string) *RelayGateway {
	return &RelayGateway{channel: domain.ChannelWhatsApp, url: url, client: client}
}

func NewEmailRelay(client relaySender, url, defaultSubject string) *RelayGateway {
	return &RelayGateway{channel: domain.ChannelEmail, url: url, defaultSubject: defaultSubject, client: client}
}

func (g *RelayGateway) Channel() domain.Channel {
	return g.channel
}

func (g *RelayGateway) Deliver(ctx context.Context, batch Batch) Result {
	if strings.TrimSpace(g.url) == "" {
		return Result{DispatchErr: fmt.Errorf("%w: %s relay url", ErrNotConfigured, g.channel)}
	}

	recipients := make([]domain.RelayRecipient, 0, len(batch.Items))
	for _, item := range batch.Items {
		recipients = append(recipients, domain.RelayRecipient{
			Name:    item.Recipient.Name,
			Phone:   item.Recipient.Phone,
			Email:   item.Recipient.Email,
			Message: item.Message,
		})
	}

	attachments := batch.Attachments
	if attachments == nil {
		attachments = []domain.AttachmentPayload{}
	}

	req := domain.RelayRequest{
		BatchID:         batch.ID,
		Channel:         g.channel,
		Recipients:      recipients,
		Message:         batch.Content,
		Attachments:     attachments,
		TotalRecipients: len(recipients),
	}

	if g.channel == domain.ChannelEmail {
		req.Subject = strings.TrimSpace(batch.Subject)
		if req.Subject == "" {
			req.Subject = g.defaultSubject
		}
	}

	resp, err := g.client.SendBulk(ctx, g.url, req)
	if err != nil {
		logger.Errorf("Batch %s: %s relay dispatch failed: %v", batch.ID, g.channel, err)
		return Result{DispatchErr: err}
	}

	outcome := resp.Normalize(len(recipients))
	logger.Infof("Batch %s: %s relay accepted (success=%t, sent=%d, failed=%d, results=%d)",
		batch.ID, g.channel, outcome.Success, outcome.Sent, outcome.Failed, len(outcome.Results))

	return Result{
		Success:  outcome.Success,
		Error:    outcome.Error,
		Outcomes: outcome.Results,
	}
}
