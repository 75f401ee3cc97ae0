package service

import (
	"context"
	"strings"
	"time"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/directory"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

const defaultContactLimit = 5000

type contactFetcher interface {
	FetchContacts(ctx context.Context) ([]directory.RawContact, error)
}

type tokenRefresher interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
	Invalidate()
}

// ContactCache stores the transformed contact list between directory reads.
type ContactCache interface {
	CacheContacts(ctx context.Context, contacts []domain.Contact, ttl time.Duration) error
	GetCachedContacts(ctx context.Context) ([]domain.Contact, error)
	InvalidateContacts(ctx context.Context) error
}

type ContactService struct {
	directory contactFetcher
	tokens    tokenRefresher
	cache     ContactCache
	cacheTTL  time.Duration
}

// NewContactService accepts a nil cache; every listing then reads the
// directory.
func NewContactService(fetcher contactFetcher, tokens tokenRefresher, cache ContactCache, cacheTTL time.Duration) *ContactService {
	return &ContactService{
		directory: fetcher,
		tokens:    tokens,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

func (s *ContactService) List(ctx context.Context, filter domain.ContactFilter) (*domain.ContactPage, error) {
	contacts, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.Contact, 0, len(contacts))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	department := strings.TrimSpace(filter.Department)

	for _, c := range contacts {
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		if department != "" && !strings.EqualFold(c.Department, department) {
			continue
		}
		filtered = append(filtered, c)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultContactLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	page := &domain.ContactPage{Total: len(filtered), Contacts: []domain.Contact{}}
	if offset < len(filtered) {
		end := offset + limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page.Contacts = filtered[offset:end]
	}

	return page, nil
}

func (s *ContactService) Departments() []string {
	return []string{domain.DepartmentCustomer, domain.DepartmentOperational, domain.DepartmentInactive}
}

// RefreshToken drops the cached token and contact list and logs in again.
func (s *ContactService) RefreshToken(ctx context.Context) error {
	s.tokens.Invalidate()

	if s.cache != nil {
		if err := s.cache.InvalidateContacts(ctx); err != nil {
			logger.Warnf("Failed to invalidate contacts cache: %v", err)
		}
	}

	_, err := s.tokens.Token(ctx, true)
	return err
}

func (s *ContactService) load(ctx context.Context) ([]domain.Contact, error) {
	if s.cache != nil {
		cached, err := s.cache.GetCachedContacts(ctx)
		if err != nil {
			logger.Warnf("Contacts cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	raw, err := s.directory.FetchContacts(ctx)
	if err != nil {
		return nil, err
	}

	contacts := directory.ToContacts(raw)
	logger.Infof("Fetched %d contacts from directory", len(contacts))

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.CacheContacts(ctx, contacts, s.cacheTTL); err != nil {
			logger.Warnf("Failed to cache contacts: %v", err)
		}
	}

	return contacts, nil
}

func matchesSearch(c domain.Contact, search string) bool {
	if strings.Contains(strings.ToLower(c.Name), search) {
		return true
	}
	if c.Email != nil && strings.Contains(strings.ToLower(*c.Email), search) {
		return true
	}
	return c.Phone != nil && strings.Contains(*c.Phone, search)
}
