package repository

import (
	"context"
	"testing"
	"time"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/database"
)

func newTestRepo(t *testing.T) *MessageLogRepository {
	t.Helper()

	db, err := database.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return NewMessageLogRepository(db)
}

func pendingRow(batchID, name, phone, email string) domain.MessageLog {
	return domain.MessageLog{
		RecipientName:  name,
		RecipientPhone: domain.StringPtr(phone),
		RecipientEmail: domain.StringPtr(email),
		MessageContent: "Hola " + name,
		Channel:        domain.ChannelEmail,
		Status:         domain.StatusPending,
		Attachments:    domain.Attachments{"a.pdf", "b.png"},
		BatchID:        domain.StringPtr(batchID),
	}
}

func TestCreateMany_AssignsIDsAndPersistsAttachments(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.CreateMany(ctx, []domain.MessageLog{
		pendingRow("batch-1", "Ana", "", "ana@example.com"),
		pendingRow("batch-1", "Luis", "+573001112233", ""),
	})
	if err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	if len(created) != 2 {
		t.Fatalf("expected 2 created rows, got %d", len(created))
	}
	if created[0].ID == 0 || created[1].ID == 0 || created[0].ID == created[1].ID {
		t.Fatalf("expected distinct non-zero IDs, got %d and %d", created[0].ID, created[1].ID)
	}

	got, err := repo.GetByID(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected row to exist")
	}
	if len(got.Attachments) != 2 || got.Attachments[0] != "a.pdf" || got.Attachments[1] != "b.png" {
		t.Errorf("expected ordered attachments [a.pdf b.png], got %v", got.Attachments)
	}
	if got.RecipientPhone != nil {
		t.Errorf("expected NULL phone, got %q", *got.RecipientPhone)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}

func TestResolveByBatchAndEmail_DoesNotTouchOtherBatches(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.CreateMany(ctx, []domain.MessageLog{
		pendingRow("batch-a", "Ana", "", "shared@example.com"),
		pendingRow("batch-a", "Ana again", "", "shared@example.com"),
		pendingRow("batch-b", "Ana other", "", "shared@example.com"),
	})
	if err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	updated, err := repo.ResolveByBatchAndEmail(ctx, "batch-a", "shared@example.com", domain.Sent(domain.ChannelEmail))
	if err != nil {
		t.Fatalf("ResolveByBatchAndEmail returned error: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated rows (duplicates), got %d", updated)
	}

	rowsA, _ := repo.GetByBatchID(ctx, "batch-a")
	for _, row := range rowsA {
		if row.Status != domain.StatusSent {
			t.Errorf("expected batch-a row %d sent, got %s", row.ID, row.Status)
		}
	}

	rowsB, _ := repo.GetByBatchID(ctx, "batch-b")
	if len(rowsB) != 1 || rowsB[0].Status != domain.StatusPending {
		t.Fatalf("expected batch-b row untouched and pending, got %+v", rowsB)
	}
}

func TestResolve_NeverReversesResolvedRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.CreateMany(ctx, []domain.MessageLog{
		pendingRow("batch-1", "Luis", "+573001112233", ""),
	})
	if err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	errMsg := "number not on whatsapp"
	updated, err := repo.ResolveByBatchAndPhone(ctx, "batch-1", "+573001112233", domain.Failure(domain.ChannelWhatsApp, errMsg))
	if err != nil || updated != 1 {
		t.Fatalf("expected 1 update, got %d (err %v)", updated, err)
	}

	updated, err = repo.ResolveByBatchAndPhone(ctx, "batch-1", "+573001112233", domain.Sent(domain.ChannelWhatsApp))
	if err != nil {
		t.Fatalf("second resolve returned error: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected resolved row to be left alone, got %d updates", updated)
	}

	updated, err = repo.ResolvePendingByIDs(ctx, []int64{created[0].ID}, domain.Sent(domain.ChannelWhatsApp))
	if err != nil || updated != 0 {
		t.Fatalf("expected ResolvePendingByIDs to skip resolved row, got %d (err %v)", updated, err)
	}

	row, _ := repo.GetByID(ctx, created[0].ID)
	if row.Status != domain.StatusFailed {
		t.Fatalf("expected status failed, got %s", row.Status)
	}
	if domain.StringValue(row.ErrorMessage) != errMsg {
		t.Fatalf("expected error %q, got %q", errMsg, domain.StringValue(row.ErrorMessage))
	}
}

func TestResolve_BothChannelRowWaitsForEveryChannel(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	both := pendingRow("batch-1", "Ana", "+573001112233", "ana@example.com")
	both.Channel = domain.ChannelBoth
	phoneOnly := pendingRow("batch-1", "Luis", "+573004445566", "")
	phoneOnly.Channel = domain.ChannelBoth

	created, err := repo.CreateMany(ctx, []domain.MessageLog{both, phoneOnly})
	if err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}
	ids := []int64{created[0].ID, created[1].ID}

	updated, err := repo.ResolvePendingByIDs(ctx, ids, domain.Sent(domain.ChannelWhatsApp))
	if err != nil || updated != 2 {
		t.Fatalf("expected 2 updates, got %d (err %v)", updated, err)
	}

	row, _ := repo.GetByID(ctx, created[0].ID)
	if row.Status != domain.StatusPending {
		t.Fatalf("expected row to wait for email, got %s", row.Status)
	}
	row, _ = repo.GetByID(ctx, created[1].ID)
	if row.Status != domain.StatusSent {
		t.Fatalf("expected phone-only row sent, got %s", row.Status)
	}

	// A second whatsapp outcome does not overwrite the first.
	updated, err = repo.ResolveByBatchAndPhone(ctx, "batch-1", "+573001112233", domain.Failure(domain.ChannelWhatsApp, "late"))
	if err != nil || updated != 0 {
		t.Fatalf("expected repeated channel outcome ignored, got %d (err %v)", updated, err)
	}

	updated, err = repo.ResolveByBatchAndEmail(ctx, "batch-1", "ana@example.com", domain.Failure(domain.ChannelEmail, "mailbox full"))
	if err != nil || updated != 1 {
		t.Fatalf("expected 1 update, got %d (err %v)", updated, err)
	}

	row, _ = repo.GetByID(ctx, created[0].ID)
	if row.Status != domain.StatusFailed || domain.StringValue(row.ErrorMessage) != "Email: mailbox full" {
		t.Fatalf("expected failed with email reason, got %s %q", row.Status, domain.StringValue(row.ErrorMessage))
	}
}

func TestList_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	rows := []domain.MessageLog{
		pendingRow("batch-1", "Ana", "", "ana@example.com"),
		pendingRow("batch-1", "Bruno", "", "bruno@example.com"),
		pendingRow("batch-2", "Carla", "", "carla@example.com"),
	}
	if _, err := repo.CreateMany(ctx, rows); err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	logs, total, err := repo.List(ctx, domain.HistoryFilter{BatchID: "batch-1", Page: 1, PageSize: 1})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total=2, got %d", total)
	}
	if len(logs) != 1 {
		t.Errorf("expected page of 1, got %d", len(logs))
	}

	logs, total, err = repo.List(ctx, domain.HistoryFilter{Search: "CARLA"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].RecipientName != "Carla" {
		t.Fatalf("expected search to find Carla, got total=%d logs=%+v", total, logs)
	}
}

func TestCount_FiltersByChannelAndDates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	march := pendingRow("batch-1", "Ana", "", "ana@example.com")
	march.SentAt = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	april := pendingRow("batch-1", "Bruno", "", "bruno@example.com")
	april.SentAt = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	sms := pendingRow("batch-2", "Carla", "3001112233", "")
	sms.Channel = domain.ChannelSMS
	sms.SentAt = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	if _, err := repo.CreateMany(ctx, []domain.MessageLog{march, april, sms}); err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	email := domain.ChannelEmail

	cases := []struct {
		name   string
		filter domain.HistoryFilter
		want   int64
	}{
		{"everything", domain.HistoryFilter{}, 3},
		{"march", domain.HistoryFilter{DateFrom: &from, DateTo: &to}, 2},
		{"march email", domain.HistoryFilter{DateFrom: &from, DateTo: &to, Channel: &email}, 1},
		{"from march", domain.HistoryFilter{DateFrom: &from}, 3},
	}
	for _, tc := range cases {
		got, err := repo.Count(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: Count returned error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestDelete_RemovesMatchingRowsAndTheirOutcomes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	both := pendingRow("batch-1", "Ana", "+573001112233", "ana@example.com")
	both.Channel = domain.ChannelBoth
	created, err := repo.CreateMany(ctx, []domain.MessageLog{
		both,
		pendingRow("batch-1", "Bruno", "", "bruno@example.com"),
	})
	if err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}
	if _, err := repo.ResolvePendingByIDs(ctx, []int64{created[0].ID}, domain.Sent(domain.ChannelWhatsApp)); err != nil {
		t.Fatalf("ResolvePendingByIDs returned error: %v", err)
	}

	deleted, err := repo.Delete(ctx, domain.HistoryFilter{Search: "ana"})
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	var outcomes int
	if err := repo.db.GetContext(ctx, &outcomes, "SELECT COUNT(*) FROM message_channel_outcomes"); err != nil {
		t.Fatalf("failed to count outcomes: %v", err)
	}
	if outcomes != 0 {
		t.Errorf("expected the deleted row's outcomes gone, got %d", outcomes)
	}

	left, err := repo.Count(ctx, domain.HistoryFilter{})
	if err != nil || left != 1 {
		t.Errorf("expected Bruno to remain, got %d (err %v)", left, err)
	}
}

func TestGetStats_CountsStatusesAndChannels(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	sms := pendingRow("batch-1", "Sofia", "+573005556677", "")
	sms.Channel = domain.ChannelSMS
	sms.Status = domain.StatusSent

	failed := pendingRow("batch-1", "Mateo", "", "")
	failed.Channel = domain.ChannelWhatsApp
	failed.Status = domain.StatusFailed

	if _, err := repo.CreateMany(ctx, []domain.MessageLog{
		pendingRow("batch-1", "Ana", "", "ana@example.com"),
		sms,
		failed,
	}); err != nil {
		t.Fatalf("CreateMany returned error: %v", err)
	}

	stats, err := repo.GetStats(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}

	if stats.Total != 3 || stats.Pending != 1 || stats.Sent != 1 || stats.Failed != 1 {
		t.Errorf("unexpected status counts: %+v", stats)
	}
	if stats.ByChannel.Email != 1 || stats.ByChannel.SMS != 1 || stats.ByChannel.WhatsApp != 1 {
		t.Errorf("unexpected channel counts: %+v", stats.ByChannel)
	}
}
