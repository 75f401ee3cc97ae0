package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
	"github.com/onurcolak/bulk-dispatch-service/internal/templating"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

var (
	ErrInvalidChannel = errors.New("channel must be one of whatsapp, email or both")
	ErrNoRecipients   = errors.New("at least one recipient is required")
	ErrMissingBatchID = errors.New("batch_id is required")
)

const (
	reasonMissingPhone   = "missing phone number"
	reasonMissingEmail   = "missing email address"
	reasonMissingContact = "missing contact information"
	reasonDeliveryFailed = "delivery failed"
	dispatchFailedPrefix = "dispatch failed: "
)

// Small internal interfaces so we can test without touching the real DB,
// dispatcher or relays.
type logRepository interface {
	CreateMany(ctx context.Context, logs []domain.MessageLog) ([]domain.MessageLog, error)
	ResolveByBatchAndEmail(ctx context.Context, batchID, email string, outcome domain.ChannelOutcome) (int64, error)
	ResolveByBatchAndPhone(ctx context.Context, batchID, phone string, outcome domain.ChannelOutcome) (int64, error)
	ResolvePendingByIDs(ctx context.Context, ids []int64, outcome domain.ChannelOutcome) (int64, error)
}

type taskQueue interface {
	Enqueue(task dispatcher.Task) error
}

// DispatchService coordinates relay submissions: it records one pending row
// per recipient, hands delivery to the dispatcher and applies outcomes as
// they arrive.
type DispatchService struct {
	repo            logRepository
	queue           taskQueue
	whatsapp        gateway.Gateway
	email           gateway.Gateway
	attachments     gateway.Loader
	noResultsPolicy string
}

func NewDispatchService(
	repo logRepository,
	queue taskQueue,
	whatsappRelay gateway.Gateway,
	emailRelay gateway.Gateway,
	attachments gateway.Loader,
	cfg environments.RelayConfig,
) *DispatchService {
	return &DispatchService{
		repo:            repo,
		queue:           queue,
		whatsapp:        whatsappRelay,
		email:           emailRelay,
		attachments:     attachments,
		noResultsPolicy: cfg.NoResultsPolicy,
	}
}

type partition struct {
	gw    gateway.Gateway
	items []gateway.Item
	rows  []int
}

// SendBulk records the submission and queues delivery. It returns as soon
// as the rows are stored; delivery outcomes are applied later.
func (s *DispatchService) SendBulk(ctx context.Context, req domain.BulkRequest) (*domain.BatchSummary, error) {
	if !req.Channel.IsValid() || req.Channel == domain.ChannelSMS {
		return nil, ErrInvalidChannel
	}
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	batchID := uuid.NewString()
	rows := make([]domain.MessageLog, 0, len(req.Recipients))
	wa := &partition{gw: s.whatsapp}
	em := &partition{gw: s.email}
	rejected := 0

	for i, r := range req.Recipients {
		message := templating.Render(req.Content, r)
		row := domain.MessageLog{
			RecipientName:  strings.TrimSpace(r.Name),
			RecipientPhone: domain.StringPtr(r.Phone),
			RecipientEmail: domain.StringPtr(r.Email),
			Subject:        domain.StringPtr(req.Subject),
			MessageContent: message,
			Channel:        req.Channel,
			Status:         domain.StatusPending,
			Attachments:    domain.Attachments(req.Attachments),
			BatchID:        &batchID,
		}

		item := gateway.Item{Recipient: r, Message: message}
		toWhatsApp := req.Channel.IncludesWhatsApp() && row.RecipientPhone != nil
		toEmail := req.Channel.IncludesEmail() && row.RecipientEmail != nil

		if toWhatsApp {
			wa.items = append(wa.items, item)
			wa.rows = append(wa.rows, i)
		}
		if toEmail {
			em.items = append(em.items, item)
			em.rows = append(em.rows, i)
		}
		if !toWhatsApp && !toEmail {
			row.Status = domain.StatusFailed
			row.ErrorMessage = domain.StringPtr(missingReason(req.Channel))
			rejected++
		}

		rows = append(rows, row)
	}

	created, err := s.repo.CreateMany(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to record batch: %w", err)
	}

	var encoded []domain.AttachmentPayload
	if len(req.Attachments) > 0 && (len(wa.items) > 0 || len(em.items) > 0) {
		encoded = gateway.EncodeAttachments(s.attachments, req.Attachments)
	}

	refused := make(map[int][]domain.ChannelOutcome)

	for _, p := range []*partition{wa, em} {
		if len(p.items) == 0 {
			continue
		}

		ids := make([]int64, 0, len(p.rows))
		for _, idx := range p.rows {
			ids = append(ids, created[idx].ID)
		}

		batch := gateway.Batch{
			ID:          batchID,
			Items:       p.items,
			Content:     req.Content,
			Subject:     req.Subject,
			Attachments: encoded,
		}

		if err := s.queue.Enqueue(s.deliveryTask(p.gw, batch, ids)); err != nil {
			logger.Errorf("Batch %s: %s handoff refused: %v", batchID, p.gw.Channel(), err)
			outcome := domain.Failure(p.gw.Channel(), dispatchFailedPrefix+err.Error())
			if _, err := s.repo.ResolvePendingByIDs(ctx, ids, outcome); err != nil {
				logger.Errorf("Failed to mark rows as failed: %v", err)
				continue
			}
			for _, idx := range p.rows {
				refused[idx] = append(refused[idx], outcome)
			}
		}
	}

	rejected += mirrorRefused(created, refused)

	logger.Infof("Batch %s recorded: %d recipients, %d whatsapp, %d email, %d rejected",
		batchID, len(created), len(wa.items), len(em.items), rejected)

	return &domain.BatchSummary{
		Total:    len(created),
		Sent:     0,
		Failed:   0,
		Rejected: rejected,
		BatchID:  batchID,
		Rows:     created,
	}, nil
}

// mirrorRefused applies refused handoffs to the returned row snapshots and
// returns how many rows they resolved. A "both" row whose other channel was
// queued stays pending.
func mirrorRefused(rows []domain.MessageLog, refused map[int][]domain.ChannelOutcome) int {
	resolved := 0
	for idx, outcomes := range refused {
		status, errMsg, done := rows[idx].Resolve(outcomes)
		if !done || rows[idx].Status != domain.StatusPending {
			continue
		}
		rows[idx].Status = status
		rows[idx].ErrorMessage = errMsg
		resolved++
	}
	return resolved
}

func (s *DispatchService) deliveryTask(gw gateway.Gateway, batch gateway.Batch, ids []int64) dispatcher.Task {
	return dispatcher.Task{
		Name: fmt.Sprintf("%s batch %s", gw.Channel(), batch.ID),
		Run: func(ctx context.Context) error {
			return s.deliver(ctx, gw, batch, ids)
		},
	}
}

func (s *DispatchService) deliver(ctx context.Context, gw gateway.Gateway, batch gateway.Batch, ids []int64) error {
	channel := gw.Channel()
	res := gw.Deliver(ctx, batch)

	if res.DispatchErr != nil {
		n, err := s.repo.ResolvePendingByIDs(ctx, ids, domain.Failure(channel, dispatchFailedPrefix+res.DispatchErr.Error()))
		if err != nil {
			return fmt.Errorf("dispatch failed and rows could not be updated: %w", err)
		}
		logger.Warnf("Batch %s: %d %s rows failed after dispatch error", batch.ID, n, channel)
		return fmt.Errorf("%s dispatch of batch %s: %w", channel, batch.ID, res.DispatchErr)
	}

	if len(res.Outcomes) > 0 {
		updated, err := s.applyResults(ctx, batch.ID, channel, res.Outcomes)
		if err != nil {
			return err
		}
		logger.Infof("Batch %s: applied %d %s results (%d rows updated)", batch.ID, len(res.Outcomes), channel, updated)
		return nil
	}

	if !res.Success {
		outcome := domain.Failure(channel, res.Error)
		if _, err := s.repo.ResolvePendingByIDs(ctx, ids, outcome); err != nil {
			return fmt.Errorf("failed to record relay failure: %w", err)
		}
		return fmt.Errorf("%s relay rejected batch %s: %s", channel, batch.ID, domain.StringValue(outcome.Error))
	}

	if s.noResultsPolicy == environments.NoResultsMarkSent {
		n, err := s.repo.ResolvePendingByIDs(ctx, ids, domain.Sent(channel))
		if err != nil {
			return fmt.Errorf("failed to mark batch as sent: %w", err)
		}
		logger.Infof("Batch %s: relay accepted without results, %d %s rows marked sent", batch.ID, n, channel)
		return nil
	}

	logger.Infof("Batch %s: relay accepted without results, %d %s rows await callback", batch.ID, len(ids), channel)
	return nil
}

// Reconcile applies a relay callback. Only rows of the named batch that are
// still pending are updated, so replaying a callback changes nothing.
func (s *DispatchService) Reconcile(ctx context.Context, cb domain.Callback) (*domain.ReconcileResult, error) {
	if strings.TrimSpace(cb.BatchID) == "" {
		return nil, ErrMissingBatchID
	}

	updated, err := s.applyResults(ctx, cb.BatchID, "", cb.Results)
	if err != nil {
		return nil, err
	}

	logger.Infof("Callback for batch %s: %d results, %d rows updated", cb.BatchID, len(cb.Results), updated)

	return &domain.ReconcileResult{
		Status:        "ok",
		TotalReceived: len(cb.Results),
		ActualUpdates: updated,
	}, nil
}

// applyResults resolves rows from per-recipient results. channel is the
// relay that produced them, or empty for callbacks, where each result's
// channel is taken from the result itself.
func (s *DispatchService) applyResults(ctx context.Context, batchID string, channel domain.Channel, results []domain.DeliveryResult) (int64, error) {
	var total int64

	for _, result := range results {
		value, isEmail := result.Identifier()
		if value == "" {
			continue
		}

		outcome := result.Outcome(channel)

		var (
			n   int64
			err error
		)
		if isEmail {
			n, err = s.repo.ResolveByBatchAndEmail(ctx, batchID, value, outcome)
		} else {
			n, err = s.repo.ResolveByBatchAndPhone(ctx, batchID, value, outcome)
		}
		if err != nil {
			return total, fmt.Errorf("failed to apply result for %s: %w", value, err)
		}
		total += n
	}

	return total, nil
}

func missingReason(channel domain.Channel) string {
	switch channel {
	case domain.ChannelWhatsApp, domain.ChannelSMS:
		return reasonMissingPhone
	case domain.ChannelEmail:
		return reasonMissingEmail
	}
	return reasonMissingContact
}
