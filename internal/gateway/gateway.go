// Package gateway delivers a batch of personalized messages over one channel.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"

	"golang.org/x/time/rate"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

var ErrNotConfigured = errors.New("channel endpoint not configured")

// Item is one recipient of a batch with its already personalized content.
type Item struct {
	Recipient  domain.Recipient
	Message    string
	Components []whatsapp.Component
}

type Batch struct {
	ID           string
	Items        []Item
	Content      string
	Subject      string
	Attachments  []domain.AttachmentPayload
	TemplateName string
	Language     string
	TestMode     bool
}

// Result of a delivery attempt. DispatchErr means the batch never reached
// the provider. Complete means Outcomes holds one final entry per item;
// otherwise Outcomes may be partial and the rest arrives by callback.
type Result struct {
	DispatchErr error
	Success     bool
	Error       string
	Outcomes    []domain.DeliveryResult
	Complete    bool
}

type Gateway interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, batch Batch) Result
}

// Loader resolves a stored attachment reference to its content.
type Loader interface {
	Load(name string) ([]byte, error)
}

// EncodeAttachments loads and base64-encodes attachments in order. Files
// that cannot be loaded are skipped.
func EncodeAttachments(loader Loader, names []string) []domain.AttachmentPayload {
	payloads := make([]domain.AttachmentPayload, 0, len(names))

	for _, name := range names {
		data, err := loader.Load(name)
		if err != nil {
			logger.Warnf("Skipping attachment %s: %v", name, err)
			continue
		}

		payloads = append(payloads, domain.AttachmentPayload{
			Filename: name,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}

	return payloads
}

// NewLimiter paces sequential provider calls; perSecond <= 0 disables pacing.
func NewLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
