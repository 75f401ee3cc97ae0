package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
)

type dispatchFixture struct {
	repo     *fakeLogRepo
	queue    *fakeQueue
	whatsapp *fakeGateway
	email    *fakeGateway
	svc      *DispatchService
}

func newDispatchFixture(policy string) *dispatchFixture {
	f := &dispatchFixture{
		repo:     &fakeLogRepo{},
		queue:    &fakeQueue{},
		whatsapp: &fakeGateway{channel: domain.ChannelWhatsApp, result: gateway.Result{Success: true}},
		email:    &fakeGateway{channel: domain.ChannelEmail, result: gateway.Result{Success: true}},
	}
	f.svc = NewDispatchService(f.repo, f.queue, f.whatsapp, f.email,
		fakeLoader{"a.pdf": []byte("pdf")},
		environments.RelayConfig{NoResultsPolicy: policy})
	return f
}

func mixedRecipients() []domain.Recipient {
	return []domain.Recipient{
		{Name: "Ana Ruiz", Phone: "+573001112233", Email: "ana@example.com"},
		{Name: "Luis", Phone: "+573004445566"},
		{Name: "Carla", Email: "carla@example.com"},
		{Name: "Nadie"},
	}
}

func countStatus(rows []domain.MessageLog, status domain.MessageStatus) int {
	n := 0
	for _, r := range rows {
		if r.Status == status {
			n++
		}
	}
	return n
}

func TestSendBulk_OneRowPerRecipientForEveryChannel(t *testing.T) {
	cases := []struct {
		channel      domain.Channel
		wantRejected int
		wantReason   string
		wantTasks    int
	}{
		{domain.ChannelWhatsApp, 2, "missing phone number", 1},
		{domain.ChannelEmail, 2, "missing email address", 1},
		{domain.ChannelBoth, 1, "missing contact information", 2},
	}

	for _, tc := range cases {
		t.Run(string(tc.channel), func(t *testing.T) {
			f := newDispatchFixture(environments.NoResultsKeepPending)

			summary, err := f.svc.SendBulk(context.Background(), domain.BulkRequest{
				Recipients: mixedRecipients(),
				Content:    "Hola {primer_nombre}",
				Channel:    tc.channel,
			})
			if err != nil {
				t.Fatalf("SendBulk returned error: %v", err)
			}

			rows := f.repo.byBatch(summary.BatchID)
			if len(rows) != 4 || summary.Total != 4 || len(summary.Rows) != 4 {
				t.Fatalf("expected 4 rows, got stored=%d total=%d returned=%d", len(rows), summary.Total, len(summary.Rows))
			}
			if summary.Sent != 0 || summary.Failed != 0 {
				t.Errorf("expected sent=0 failed=0 at submission, got %d/%d", summary.Sent, summary.Failed)
			}
			if summary.Rejected != tc.wantRejected || countStatus(rows, domain.StatusFailed) != tc.wantRejected {
				t.Errorf("expected %d rejected rows, got summary=%d stored=%d",
					tc.wantRejected, summary.Rejected, countStatus(rows, domain.StatusFailed))
			}
			for _, row := range rows {
				if row.Status == domain.StatusFailed && domain.StringValue(row.ErrorMessage) != tc.wantReason {
					t.Errorf("expected reason %q, got %q", tc.wantReason, domain.StringValue(row.ErrorMessage))
				}
			}
			if rows[0].MessageContent != "Hola Ana" {
				t.Errorf("expected personalized content, got %q", rows[0].MessageContent)
			}
			if len(f.queue.tasks) != tc.wantTasks {
				t.Errorf("expected %d queued tasks, got %d", tc.wantTasks, len(f.queue.tasks))
			}
		})
	}
}

func TestSendBulk_RejectsInvalidInput(t *testing.T) {
	f := newDispatchFixture("")

	_, err := f.svc.SendBulk(context.Background(), domain.BulkRequest{Recipients: mixedRecipients(), Channel: "fax"})
	if !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}

	_, err = f.svc.SendBulk(context.Background(), domain.BulkRequest{Recipients: mixedRecipients(), Channel: domain.ChannelSMS})
	if !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected sms to be rejected on the relay path, got %v", err)
	}

	_, err = f.svc.SendBulk(context.Background(), domain.BulkRequest{Channel: domain.ChannelEmail})
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

func TestSendBulk_BuildsRelayBatchWithAttachments(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)

	summary, err := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients:  mixedRecipients(),
		Content:     "Hola {nombre}",
		Channel:     domain.ChannelEmail,
		Subject:     "Aviso",
		Attachments: []string{"a.pdf", "gone.png"},
	})
	if err != nil {
		t.Fatalf("SendBulk returned error: %v", err)
	}

	f.queue.runAll()

	if len(f.email.batches) != 1 {
		t.Fatalf("expected 1 email batch, got %d", len(f.email.batches))
	}
	batch := f.email.batches[0]
	if batch.ID != summary.BatchID || batch.Subject != "Aviso" || len(batch.Items) != 2 {
		t.Errorf("unexpected batch %+v", batch)
	}
	if batch.Items[1].Message != "Hola Carla" {
		t.Errorf("expected personalized item, got %q", batch.Items[1].Message)
	}
	if len(batch.Attachments) != 1 || batch.Attachments[0].Filename != "a.pdf" {
		t.Errorf("expected only the readable attachment, got %+v", batch.Attachments)
	}
	if len(f.whatsapp.batches) != 0 {
		t.Errorf("expected no whatsapp batch for email channel")
	}
}

func TestDeliveryTask_DispatchErrorFailsPendingRows(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.whatsapp.result = gateway.Result{DispatchErr: errors.New("relay timeout")}

	summary, _ := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients: mixedRecipients(),
		Content:    "Hola",
		Channel:    domain.ChannelWhatsApp,
	})

	errs := f.queue.runAll()
	if len(errs) != 1 || errs[0] == nil {
		t.Fatalf("expected task to report the dispatch error, got %v", errs)
	}

	rows := f.repo.byBatch(summary.BatchID)
	if countStatus(rows, domain.StatusFailed) != 4 {
		t.Fatalf("expected every row failed, got %+v", rows)
	}
	if got := domain.StringValue(rows[0].ErrorMessage); got != "dispatch failed: relay timeout" {
		t.Errorf("unexpected error message %q", got)
	}
	if got := domain.StringValue(rows[3].ErrorMessage); got != "missing phone number" {
		t.Errorf("expected validation failure to be kept, got %q", got)
	}
}

func TestDeliveryTask_AppliesPerRecipientResults(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.email.result = gateway.Result{Success: true, Outcomes: []domain.DeliveryResult{
		{Email: "ana@example.com", Success: true},
		{Email: "carla@example.com", Success: false, Error: "mailbox full"},
	}}

	summary, _ := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients: mixedRecipients(),
		Content:    "Hola",
		Channel:    domain.ChannelEmail,
	})
	f.queue.runAll()

	rows := f.repo.byBatch(summary.BatchID)
	if rows[0].Status != domain.StatusSent {
		t.Errorf("expected ana sent, got %s", rows[0].Status)
	}
	if rows[2].Status != domain.StatusFailed || domain.StringValue(rows[2].ErrorMessage) != "mailbox full" {
		t.Errorf("expected carla failed with relay error, got %s %q", rows[2].Status, domain.StringValue(rows[2].ErrorMessage))
	}
}

func TestDeliveryTask_NoResultsPolicy(t *testing.T) {
	cases := []struct {
		policy string
		want   domain.MessageStatus
	}{
		{environments.NoResultsKeepPending, domain.StatusPending},
		{environments.NoResultsMarkSent, domain.StatusSent},
	}

	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			f := newDispatchFixture(tc.policy)

			summary, _ := f.svc.SendBulk(context.Background(), domain.BulkRequest{
				Recipients: []domain.Recipient{{Name: "Ana", Email: "ana@example.com"}},
				Content:    "Hola",
				Channel:    domain.ChannelEmail,
			})
			if errs := f.queue.runAll(); errs[0] != nil {
				t.Fatalf("task returned error: %v", errs[0])
			}

			if got := f.repo.byBatch(summary.BatchID)[0].Status; got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestDeliveryTask_RelayFailureWithoutResults(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.email.result = gateway.Result{Success: false, Error: "quota exceeded"}

	summary, _ := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients: []domain.Recipient{{Name: "Ana", Email: "ana@example.com"}},
		Content:    "Hola",
		Channel:    domain.ChannelEmail,
	})
	f.queue.runAll()

	row := f.repo.byBatch(summary.BatchID)[0]
	if row.Status != domain.StatusFailed || domain.StringValue(row.ErrorMessage) != "quota exceeded" {
		t.Errorf("expected failed with relay error, got %s %q", row.Status, domain.StringValue(row.ErrorMessage))
	}
}

func TestSendBulk_RefusedHandoffFailsRows(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.queue.refuse = dispatcher.ErrQueueFull

	summary, err := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients: []domain.Recipient{{Name: "Ana", Email: "ana@example.com"}, {Name: "Nadie"}},
		Content:    "Hola",
		Channel:    domain.ChannelEmail,
	})
	if err != nil {
		t.Fatalf("SendBulk returned error: %v", err)
	}

	if summary.Rejected != 2 {
		t.Errorf("expected both rows rejected, got %d", summary.Rejected)
	}
	row := f.repo.byBatch(summary.BatchID)[0]
	if row.Status != domain.StatusFailed || !strings.HasPrefix(domain.StringValue(row.ErrorMessage), "dispatch failed: ") {
		t.Errorf("unexpected stored row %+v", row)
	}
	if summary.Rows[0].Status != domain.StatusFailed {
		t.Errorf("expected returned row to reflect the failure")
	}
}

func TestReconcile_ScopedToBatchAndIdempotent(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	ctx := context.Background()

	shared := []domain.Recipient{
		{Name: "Ana", Email: "shared@example.com"},
		{Name: "Ana bis", Email: "shared@example.com"},
		{Name: "Luis", Phone: "+573004445566", Email: "luis@example.com"},
	}
	first, _ := f.svc.SendBulk(ctx, domain.BulkRequest{Recipients: shared, Content: "x", Channel: domain.ChannelEmail})
	second, _ := f.svc.SendBulk(ctx, domain.BulkRequest{Recipients: shared, Content: "y", Channel: domain.ChannelEmail})

	cb := domain.Callback{BatchID: first.BatchID, Results: []domain.DeliveryResult{
		{Email: "shared@example.com", Success: true},
		{Email: "luis@example.com", Phone: "+573004445566", Success: false, Error: "bounced"},
		{Success: true},
	}}

	res, err := f.svc.Reconcile(ctx, cb)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if res.Status != "ok" || res.TotalReceived != 3 || res.ActualUpdates != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	firstRows := f.repo.byBatch(first.BatchID)
	if firstRows[0].Status != domain.StatusSent || firstRows[1].Status != domain.StatusSent {
		t.Errorf("expected both duplicates sent, got %s/%s", firstRows[0].Status, firstRows[1].Status)
	}
	if firstRows[2].Status != domain.StatusFailed || domain.StringValue(firstRows[2].ErrorMessage) != "bounced" {
		t.Errorf("expected email match to win, got %+v", firstRows[2])
	}
	if countStatus(f.repo.byBatch(second.BatchID), domain.StatusPending) != 3 {
		t.Errorf("expected the other batch to stay pending")
	}

	replay, err := f.svc.Reconcile(ctx, cb)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.ActualUpdates != 0 || replay.TotalReceived != 3 {
		t.Errorf("expected idempotent replay, got %+v", replay)
	}
}

func TestReconcile_RequiresBatchID(t *testing.T) {
	f := newDispatchFixture("")

	if _, err := f.svc.Reconcile(context.Background(), domain.Callback{}); !errors.Is(err, ErrMissingBatchID) {
		t.Fatalf("expected ErrMissingBatchID, got %v", err)
	}
}

func TestReconcile_BothChannelWaitsForEveryChannel(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.whatsapp.result = gateway.Result{Success: true, Outcomes: []domain.DeliveryResult{
		{Phone: "+573001112233", Success: true},
		{Phone: "+573004445566", Success: true},
	}}
	ctx := context.Background()

	summary, err := f.svc.SendBulk(ctx, domain.BulkRequest{
		Recipients: mixedRecipients(),
		Content:    "Hola",
		Channel:    domain.ChannelBoth,
	})
	if err != nil {
		t.Fatalf("SendBulk returned error: %v", err)
	}
	f.queue.runAll()

	rows := f.repo.byBatch(summary.BatchID)
	if rows[0].Status != domain.StatusPending {
		t.Fatalf("expected ana to wait for the email outcome, got %s", rows[0].Status)
	}
	if rows[1].Status != domain.StatusSent {
		t.Errorf("expected phone-only recipient resolved by whatsapp alone, got %s", rows[1].Status)
	}

	cb := domain.Callback{BatchID: summary.BatchID, Results: []domain.DeliveryResult{
		{Email: "ana@example.com", Success: false, Error: "mailbox full"},
		{Email: "carla@example.com", Success: true},
	}}
	res, err := f.svc.Reconcile(ctx, cb)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if res.ActualUpdates != 2 {
		t.Errorf("expected 2 updates, got %d", res.ActualUpdates)
	}

	rows = f.repo.byBatch(summary.BatchID)
	if rows[0].Status != domain.StatusFailed || domain.StringValue(rows[0].ErrorMessage) != "Email: mailbox full" {
		t.Errorf("expected the email bounce to fail the row, got %s %q", rows[0].Status, domain.StringValue(rows[0].ErrorMessage))
	}
	if rows[2].Status != domain.StatusSent {
		t.Errorf("expected email-only recipient sent, got %s", rows[2].Status)
	}

	replay, _ := f.svc.Reconcile(ctx, cb)
	if replay.ActualUpdates != 0 {
		t.Errorf("expected replay to change nothing, got %d", replay.ActualUpdates)
	}
}

func TestReconcile_BothChannelCombinesFailures(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.whatsapp.result = gateway.Result{DispatchErr: errors.New("relay timeout")}
	ctx := context.Background()

	summary, _ := f.svc.SendBulk(ctx, domain.BulkRequest{
		Recipients: []domain.Recipient{{Name: "Ana", Phone: "+573001112233", Email: "ana@example.com"}},
		Content:    "Hola",
		Channel:    domain.ChannelBoth,
	})
	f.queue.runAll()

	if got := f.repo.byBatch(summary.BatchID)[0].Status; got != domain.StatusPending {
		t.Fatalf("expected row pending until email reports, got %s", got)
	}

	if _, err := f.svc.Reconcile(ctx, domain.Callback{BatchID: summary.BatchID, Results: []domain.DeliveryResult{
		{Email: "ana@example.com", Success: false},
	}}); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	row := f.repo.byBatch(summary.BatchID)[0]
	want := "WhatsApp: dispatch failed: relay timeout; Email: delivery failed"
	if row.Status != domain.StatusFailed || domain.StringValue(row.ErrorMessage) != want {
		t.Errorf("expected %q, got %s %q", want, row.Status, domain.StringValue(row.ErrorMessage))
	}
}

func TestReconcile_CallbackWithoutSuccessCountsAsDelivered(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	ctx := context.Background()

	summary, _ := f.svc.SendBulk(ctx, domain.BulkRequest{
		Recipients: []domain.Recipient{{Name: "Ana", Email: "ana@example.com"}},
		Content:    "Hola",
		Channel:    domain.ChannelEmail,
	})

	var cb domain.Callback
	body := `{"batch_id":"` + summary.BatchID + `","results":[{"email":"ana@example.com"}]}`
	if err := json.Unmarshal([]byte(body), &cb); err != nil {
		t.Fatalf("failed to decode callback: %v", err)
	}

	if _, err := f.svc.Reconcile(ctx, cb); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if row := f.repo.byBatch(summary.BatchID)[0]; row.Status != domain.StatusSent {
		t.Errorf("expected sent, got %s %q", row.Status, domain.StringValue(row.ErrorMessage))
	}
}

func TestSendBulk_RefusedHandoffOnBothChannels(t *testing.T) {
	f := newDispatchFixture(environments.NoResultsKeepPending)
	f.queue.refuse = dispatcher.ErrQueueFull

	summary, err := f.svc.SendBulk(context.Background(), domain.BulkRequest{
		Recipients: []domain.Recipient{{Name: "Ana", Phone: "+573001112233", Email: "ana@example.com"}},
		Content:    "Hola",
		Channel:    domain.ChannelBoth,
	})
	if err != nil {
		t.Fatalf("SendBulk returned error: %v", err)
	}

	if summary.Rejected != 1 {
		t.Errorf("expected 1 rejected row, got %d", summary.Rejected)
	}
	stored := f.repo.byBatch(summary.BatchID)[0]
	if stored.Status != domain.StatusFailed ||
		!strings.HasPrefix(domain.StringValue(stored.ErrorMessage), "WhatsApp: dispatch failed: ") ||
		!strings.Contains(domain.StringValue(stored.ErrorMessage), "; Email: dispatch failed: ") {
		t.Errorf("unexpected stored row %s %q", stored.Status, domain.StringValue(stored.ErrorMessage))
	}
	if summary.Rows[0].Status != domain.StatusFailed ||
		domain.StringValue(summary.Rows[0].ErrorMessage) != domain.StringValue(stored.ErrorMessage) {
		t.Errorf("expected returned row to mirror the stored row, got %+v", summary.Rows[0])
	}
}
