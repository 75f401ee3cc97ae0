package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
)

const selectColumns = `
	SELECT id, recipient_name, recipient_phone, recipient_email, subject, message_content,
	       channel, status, error_message, attachments, batch_id, sent_at, updated_at
	FROM message_logs
`

// MessageLogRepository handles database operations for message logs.
//
// Every status update is restricted to rows still in 'pending', so a row
// resolves exactly once and never flips back.
type MessageLogRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMessageLogRepository(db *sqlx.DB) *MessageLogRepository {
	return &MessageLogRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateMany inserts all rows in one transaction and returns them with
// their assigned IDs and timestamps.
func (r *MessageLogRepository) CreateMany(ctx context.Context, logs []domain.MessageLog) ([]domain.MessageLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO message_logs
			(recipient_name, recipient_phone, recipient_email, subject, message_content,
			 channel, status, error_message, attachments, batch_id, sent_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := r.now()
	created := make([]domain.MessageLog, 0, len(logs))

	for _, entry := range logs {
		if entry.SentAt.IsZero() {
			entry.SentAt = now
		}
		entry.UpdatedAt = now
		if entry.Attachments == nil {
			entry.Attachments = domain.Attachments{}
		}

		result, err := tx.ExecContext(ctx, query,
			entry.RecipientName, entry.RecipientPhone, entry.RecipientEmail, entry.Subject,
			entry.MessageContent, entry.Channel, entry.Status, entry.ErrorMessage,
			entry.Attachments, entry.BatchID, entry.SentAt, entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create message log: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert id: %w", err)
		}

		entry.ID = id
		created = append(created, entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message logs: %w", err)
	}

	return created, nil
}

// ResolveByBatchAndEmail applies an outcome to the pending rows of a batch
// addressed to the given email. Duplicate recipients are all updated.
func (r *MessageLogRepository) ResolveByBatchAndEmail(
	ctx context.Context,
	batchID, email string,
	outcome domain.ChannelOutcome,
) (int64, error) {
	return r.resolveWhere(ctx, "batch_id = ? AND recipient_email = ?", []any{batchID, email}, outcome)
}

// ResolveByBatchAndPhone applies an outcome to the pending rows of a batch
// addressed to the given phone number.
func (r *MessageLogRepository) ResolveByBatchAndPhone(
	ctx context.Context,
	batchID, phone string,
	outcome domain.ChannelOutcome,
) (int64, error) {
	return r.resolveWhere(ctx, "batch_id = ? AND recipient_phone = ?", []any{batchID, phone}, outcome)
}

// ResolvePendingByIDs applies an outcome to the given rows that are still pending.
func (r *MessageLogRepository) ResolvePendingByIDs(
	ctx context.Context,
	ids []int64,
	outcome domain.ChannelOutcome,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	cond, args, err := sqlx.In("id IN (?)", ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build resolve query: %w", err)
	}

	return r.resolveWhere(ctx, cond, args, outcome)
}

// resolveWhere applies the outcome to every pending row matching cond in one
// transaction. Single-channel rows resolve immediately. "both" rows record
// the channel outcome and resolve once every delivery channel has reported;
// a channel that already reported is not overwritten.
//
// The count is the number of rows whose state changed.
func (r *MessageLogRepository) resolveWhere(
	ctx context.Context,
	cond string,
	args []any,
	outcome domain.ChannelOutcome,
) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT id, channel, status, recipient_phone, recipient_email
		FROM message_logs
		WHERE ` + cond + ` AND status = 'pending'
		ORDER BY id` + r.lockClause()

	var targets []domain.MessageLog
	if err := tx.SelectContext(ctx, &targets, tx.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to select pending message logs: %w", err)
	}

	now := r.now()
	var changed int64

	for _, target := range targets {
		ok, err := r.applyOutcome(ctx, tx, target, outcome, now)
		if err != nil {
			return 0, err
		}
		if ok {
			changed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit resolution: %w", err)
	}

	return changed, nil
}

func (r *MessageLogRepository) applyOutcome(
	ctx context.Context,
	tx *sqlx.Tx,
	row domain.MessageLog,
	outcome domain.ChannelOutcome,
	now time.Time,
) (bool, error) {
	if row.Channel != domain.ChannelBoth {
		return r.setStatus(ctx, tx, row.ID, outcome.Status, outcome.Error, now)
	}
	if !slices.Contains(row.DeliveryChannels(), outcome.Channel) {
		return false, nil
	}

	var recorded int
	if err := tx.GetContext(ctx, &recorded,
		"SELECT COUNT(*) FROM message_channel_outcomes WHERE message_id = ? AND channel = ?",
		row.ID, outcome.Channel,
	); err != nil {
		return false, fmt.Errorf("failed to read channel outcome: %w", err)
	}
	if recorded > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_channel_outcomes (message_id, channel, status, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, outcome.Channel, outcome.Status, outcome.Error, now); err != nil {
		return false, fmt.Errorf("failed to record channel outcome: %w", err)
	}

	var outcomes []domain.ChannelOutcome
	if err := tx.SelectContext(ctx, &outcomes,
		"SELECT channel, status, error_message FROM message_channel_outcomes WHERE message_id = ?",
		row.ID,
	); err != nil {
		return false, fmt.Errorf("failed to read channel outcomes: %w", err)
	}

	if status, errMsg, done := row.Resolve(outcomes); done {
		if _, err := r.setStatus(ctx, tx, row.ID, status, errMsg, now); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (r *MessageLogRepository) setStatus(
	ctx context.Context,
	tx *sqlx.Tx,
	id int64,
	status domain.MessageStatus,
	errMsg *string,
	now time.Time,
) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE message_logs
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, status, errMsg, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve message log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// lockClause serializes concurrent channel outcomes for the same row on
// MySQL. SQLite runs on a single connection, so transactions already are.
func (r *MessageLogRepository) lockClause() string {
	if r.db.DriverName() == "mysql" {
		return " FOR UPDATE"
	}
	return ""
}

func (r *MessageLogRepository) GetByID(ctx context.Context, id int64) (*domain.MessageLog, error) {
	var entry domain.MessageLog
	if err := r.db.GetContext(ctx, &entry, selectColumns+" WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message log: %w", err)
	}

	return &entry, nil
}

func (r *MessageLogRepository) GetByBatchID(ctx context.Context, batchID string) ([]domain.MessageLog, error) {
	var logs []domain.MessageLog
	if err := r.db.SelectContext(ctx, &logs, selectColumns+" WHERE batch_id = ? ORDER BY id ASC", batchID); err != nil {
		return nil, fmt.Errorf("failed to get batch message logs: %w", err)
	}

	return logs, nil
}

func (r *MessageLogRepository) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.MessageLog, int64, error) {
	where, args := historyWhere(filter)

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM message_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count message logs: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := selectColumns + where + " ORDER BY sent_at DESC, id DESC LIMIT ? OFFSET ?"
	pageArgs := append(append([]any{}, args...), pageSize, offset)

	var logs []domain.MessageLog
	if err := r.db.SelectContext(ctx, &logs, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list message logs: %w", err)
	}

	return logs, totalCount, nil
}

// Count returns the number of rows matching filter.
func (r *MessageLogRepository) Count(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	where, args := historyWhere(filter)

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM message_logs"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count message logs: %w", err)
	}
	return total, nil
}

// Delete removes the rows matching filter together with their channel
// outcomes and returns how many rows went.
func (r *MessageLogRepository) Delete(ctx context.Context, filter domain.HistoryFilter) (int64, error) {
	where, args := historyWhere(filter)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM message_channel_outcomes WHERE message_id IN (SELECT id FROM message_logs"+where+")", args...); err != nil {
		return 0, fmt.Errorf("failed to delete channel outcomes: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM message_logs"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete message logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

func historyWhere(filter domain.HistoryFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Channel != nil {
		conditions = append(conditions, "channel = ?")
		args = append(args, *filter.Channel)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, "sent_at >= ?")
		args = append(args, filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		conditions = append(conditions, "sent_at <= ?")
		args = append(args, filter.DateTo.UTC())
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		conditions = append(conditions,
			"(LOWER(recipient_name) LIKE ? OR LOWER(COALESCE(recipient_email, '')) LIKE ? OR COALESCE(recipient_phone, '') LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// GetStats returns status and channel counts for rows sent since the given time.
func (r *MessageLogRepository) GetStats(ctx context.Context, since time.Time) (*domain.Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed,
			COALESCE(SUM(CASE WHEN channel IN ('whatsapp', 'both') THEN 1 ELSE 0 END), 0) AS whatsapp,
			COALESCE(SUM(CASE WHEN channel IN ('email', 'both') THEN 1 ELSE 0 END), 0)    AS email,
			COALESCE(SUM(CASE WHEN channel = 'sms' THEN 1 ELSE 0 END), 0)                 AS sms
		FROM message_logs
		WHERE sent_at >= ?
	`

	var row struct {
		Total    int64 `db:"total"`
		Pending  int64 `db:"pending"`
		Sent     int64 `db:"sent"`
		Failed   int64 `db:"failed"`
		WhatsApp int64 `db:"whatsapp"`
		Email    int64 `db:"email"`
		SMS      int64 `db:"sms"`
	}

	if err := r.db.GetContext(ctx, &row, query, since); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &domain.Stats{
		Total:   row.Total,
		Pending: row.Pending,
		Sent:    row.Sent,
		Failed:  row.Failed,
		ByChannel: domain.ChannelStats{
			WhatsApp: row.WhatsApp,
			Email:    row.Email,
			SMS:      row.SMS,
		},
	}
	if row.Total > 0 {
		stats.SuccessRate = float64(int64(float64(row.Sent)/float64(row.Total)*10000)) / 100
	}

	return stats, nil
}
