package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/onurcolak/bulk-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
	"github.com/onurcolak/bulk-dispatch-service/pkg/directory"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

//
// Test fakes shared by the service tests.
//

// fakeLogRepo keeps rows in memory and applies the same pending-only guard
// and per-channel resolution of "both" rows as the SQL repository.
type fakeLogRepo struct {
	mu       sync.Mutex
	rows     []domain.MessageLog
	outcomes map[int64][]domain.ChannelOutcome
	nextID   int64
}

func (r *fakeLogRepo) CreateMany(ctx context.Context, logs []domain.MessageLog) ([]domain.MessageLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := make([]domain.MessageLog, 0, len(logs))
	for _, entry := range logs {
		r.nextID++
		entry.ID = r.nextID
		r.rows = append(r.rows, entry)
		created = append(created, entry)
	}
	return created, nil
}

func (r *fakeLogRepo) resolve(match func(domain.MessageLog) bool, outcome domain.ChannelOutcome) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.outcomes == nil {
		r.outcomes = make(map[int64][]domain.ChannelOutcome)
	}

	var n int64
	for i := range r.rows {
		row := &r.rows[i]
		if row.Status != domain.StatusPending || !match(*row) {
			continue
		}

		if row.Channel != domain.ChannelBoth {
			row.Status = outcome.Status
			row.ErrorMessage = outcome.Error
			n++
			continue
		}

		if !slices.Contains(row.DeliveryChannels(), outcome.Channel) {
			continue
		}
		recorded := slices.ContainsFunc(r.outcomes[row.ID], func(o domain.ChannelOutcome) bool {
			return o.Channel == outcome.Channel
		})
		if recorded {
			continue
		}
		r.outcomes[row.ID] = append(r.outcomes[row.ID], outcome)
		if status, errMsg, done := row.Resolve(r.outcomes[row.ID]); done {
			row.Status = status
			row.ErrorMessage = errMsg
		}
		n++
	}
	return n
}

func (r *fakeLogRepo) ResolveByBatchAndEmail(ctx context.Context, batchID, email string, outcome domain.ChannelOutcome) (int64, error) {
	return r.resolve(func(row domain.MessageLog) bool {
		return domain.StringValue(row.BatchID) == batchID && domain.StringValue(row.RecipientEmail) == email
	}, outcome), nil
}

func (r *fakeLogRepo) ResolveByBatchAndPhone(ctx context.Context, batchID, phone string, outcome domain.ChannelOutcome) (int64, error) {
	return r.resolve(func(row domain.MessageLog) bool {
		return domain.StringValue(row.BatchID) == batchID && domain.StringValue(row.RecipientPhone) == phone
	}, outcome), nil
}

func (r *fakeLogRepo) ResolvePendingByIDs(ctx context.Context, ids []int64, outcome domain.ChannelOutcome) (int64, error) {
	return r.resolve(func(row domain.MessageLog) bool { return slices.Contains(ids, row.ID) }, outcome), nil
}

func (r *fakeLogRepo) byBatch(batchID string) []domain.MessageLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.MessageLog
	for _, row := range r.rows {
		if domain.StringValue(row.BatchID) == batchID {
			out = append(out, row)
		}
	}
	return out
}

// fakeQueue records tasks instead of running them.
type fakeQueue struct {
	tasks  []dispatcher.Task
	refuse error
}

func (q *fakeQueue) Enqueue(task dispatcher.Task) error {
	if q.refuse != nil {
		return q.refuse
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) runAll() []error {
	var errs []error
	for _, task := range q.tasks {
		errs = append(errs, task.Run(context.Background()))
	}
	q.tasks = nil
	return errs
}

type fakeGateway struct {
	channel domain.Channel
	result  gateway.Result
	batches []gateway.Batch
}

func (g *fakeGateway) Channel() domain.Channel {
	return g.channel
}

func (g *fakeGateway) Deliver(ctx context.Context, batch gateway.Batch) gateway.Result {
	g.batches = append(g.batches, batch)
	return g.result
}

type fakeLoader map[string][]byte

func (l fakeLoader) Load(name string) ([]byte, error) {
	data, ok := l[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type fakeCredits struct{}

func (fakeCredits) GetCredits(ctx context.Context) (*sms.Credits, error) {
	return &sms.Credits{Credits: "10"}, nil
}

type fakeCatalog struct {
	template   *whatsapp.Template
	err        error
	lookups    int
	templates  []whatsapp.Template
	configured bool
}

func (c *fakeCatalog) GetTemplates(ctx context.Context, status string) ([]whatsapp.Template, error) {
	return c.templates, c.err
}

func (c *fakeCatalog) GetTemplateByName(ctx context.Context, name string) (*whatsapp.Template, error) {
	c.lookups++
	return c.template, c.err
}

func (c *fakeCatalog) IsConfigured() bool      { return c.configured }
func (c *fakeCatalog) CanSend() bool           { return c.configured }
func (c *fakeCatalog) DefaultLanguage() string { return "es_CO" }

type fakeFetcher struct {
	contacts []directory.RawContact
	err      error
	calls    int
}

func (f *fakeFetcher) FetchContacts(ctx context.Context) ([]directory.RawContact, error) {
	f.calls++
	return f.contacts, f.err
}

type fakeTokens struct {
	invalidated int
	forced      int
}

func (t *fakeTokens) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if forceRefresh {
		t.forced++
	}
	return "tok", nil
}

func (t *fakeTokens) Invalidate() {
	t.invalidated++
}

type fakeContactCache struct {
	contacts    []domain.Contact
	ttl         time.Duration
	invalidated int
}

func (c *fakeContactCache) CacheContacts(ctx context.Context, contacts []domain.Contact, ttl time.Duration) error {
	c.contacts = contacts
	c.ttl = ttl
	return nil
}

func (c *fakeContactCache) GetCachedContacts(ctx context.Context) ([]domain.Contact, error) {
	return c.contacts, nil
}

func (c *fakeContactCache) InvalidateContacts(ctx context.Context) error {
	c.contacts = nil
	c.invalidated++
	return nil
}

type fakeHistoryRepo struct {
	lastFilter domain.HistoryFilter
	lastSince  time.Time
	deletes    int
}

func (r *fakeHistoryRepo) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.MessageLog, int64, error) {
	r.lastFilter = filter
	return nil, 0, nil
}

func (r *fakeHistoryRepo) GetStats(ctx context.Context, since time.Time) (*domain.Stats, error) {
	r.lastSince = since
	return &domain.Stats{Total: 3}, nil
}

func (r *fakeHistoryRepo) GetByBatchID(ctx context.Context, batchID string) ([]domain.MessageLog, error) {
	return nil, nil
}

func (r *fakeHistoryRepo) Count(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	r.lastFilter = filter
	return 4, nil
}

func (r *fakeHistoryRepo) Delete(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	r.lastFilter = filter
	r.deletes++
	return 2, nil
}
