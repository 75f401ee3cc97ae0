package service

import (
	"context"
	"errors"
	"time"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

const (
	defaultStatsDays = 30
	maxPageSize      = 100
)

var ErrUnfilteredDelete = errors.New("at least one filter is required to delete history")

type historyRepository interface {
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.MessageLog, int64, error)
	GetStats(ctx context.Context, since time.Time) (*domain.Stats, error)
	GetByBatchID(ctx context.Context, batchID string) ([]domain.MessageLog, error)
	Count(ctx context.Context, filter domain.HistoryFilter) (int64, error)
	Delete(ctx context.Context, filter domain.HistoryFilter) (int64, error)
}

type HistoryService struct {
	repo historyRepository
	now  func() time.Time
}

func NewHistoryService(repo historyRepository) *HistoryService {
	return &HistoryService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.MessageLog, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	return s.repo.List(ctx, filter)
}

// Stats summarizes rows created in the last days days.
func (s *HistoryService) Stats(ctx context.Context, days int) (*domain.Stats, error) {
	if days <= 0 {
		days = defaultStatsDays
	}

	stats, err := s.repo.GetStats(ctx, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	stats.PeriodDays = days
	return stats, nil
}

func (s *HistoryService) Batch(ctx context.Context, batchID string) ([]domain.MessageLog, error) {
	return s.repo.GetByBatchID(ctx, batchID)
}

// Count returns how many rows match filter. A DateTo at midnight covers
// the whole day.
func (s *HistoryService) Count(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	return s.repo.Count(ctx, wholeDay(filter))
}

// Delete removes the rows matching filter. An empty filter is refused so a
// bare request never wipes the whole history.
func (s *HistoryService) Delete(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrUnfilteredDelete
	}

	deleted, err := s.repo.Delete(ctx, wholeDay(filter))
	if err != nil {
		return 0, err
	}
	logger.Infof("Deleted %d history rows", deleted)
	return deleted, nil
}

func wholeDay(filter domain.HistoryFilter) domain.HistoryFilter {
	if to := filter.DateTo; to != nil && to.Hour() == 0 && to.Minute() == 0 && to.Second() == 0 && to.Nanosecond() == 0 {
		end := to.Add(24*time.Hour - time.Second)
		filter.DateTo = &end
	}
	return filter
}
