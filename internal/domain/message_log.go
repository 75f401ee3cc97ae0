package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

func (s MessageStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelBoth     Channel = "both"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelSMS, ChannelBoth:
		return true
	}
	return false
}

// IncludesWhatsApp reports whether a bulk send on this channel goes to WhatsApp.
func (c Channel) IncludesWhatsApp() bool {
	return c == ChannelWhatsApp || c == ChannelBoth
}

// IncludesEmail reports whether a bulk send on this channel goes to email.
func (c Channel) IncludesEmail() bool {
	return c == ChannelEmail || c == ChannelBoth
}

// Attachments is the ordered list of stored file references of a log row,
// persisted as a JSON array.
type Attachments []string

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}
	return string(data), nil
}

func (a *Attachments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported attachments column type %T", src)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		*a = Attachments{}
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal attachments: %w", err)
	}
	*a = out
	return nil
}

// MessageLog is the audit row kept for every recipient of every submission.
type MessageLog struct {
	ID             int64         `db:"id" json:"id"`
	RecipientName  string        `db:"recipient_name" json:"recipientName"`
	RecipientPhone *string       `db:"recipient_phone" json:"recipientPhone,omitempty"`
	RecipientEmail *string       `db:"recipient_email" json:"recipientEmail,omitempty"`
	Subject        *string       `db:"subject" json:"subject,omitempty"`
	MessageContent string        `db:"message_content" json:"messageContent"`
	Channel        Channel       `db:"channel" json:"channel"`
	Status         MessageStatus `db:"status" json:"status"`
	ErrorMessage   *string       `db:"error_message" json:"errorMessage,omitempty"`
	Attachments    Attachments   `db:"attachments" json:"attachments"`
	BatchID        *string       `db:"batch_id" json:"batchId,omitempty"`
	SentAt         time.Time     `db:"sent_at" json:"sentAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// HistoryFilter narrows history listings. Zero values mean "no filter".
type HistoryFilter struct {
	Status   *MessageStatus
	Channel  *Channel
	Search   string
	BatchID  string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// IsEmpty reports whether the filter matches every row.
func (f HistoryFilter) IsEmpty() bool {
	return f.Status == nil && f.Channel == nil && f.DateFrom == nil && f.DateTo == nil &&
		strings.TrimSpace(f.Search) == "" && f.BatchID == ""
}

type ChannelStats struct {
	WhatsApp int64 `json:"whatsapp"`
	Email    int64 `json:"email"`
	SMS      int64 `json:"sms"`
}

type Stats struct {
	PeriodDays  int          `json:"periodDays"`
	Total       int64        `json:"total"`
	Pending     int64        `json:"pending"`
	Sent        int64        `json:"sent"`
	Failed      int64        `json:"failed"`
	SuccessRate float64      `json:"successRate"`
	ByChannel   ChannelStats `json:"byChannel"`
}

// StringPtr returns nil for blank values so optional columns stay NULL.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
