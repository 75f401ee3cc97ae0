package domain

import (
	"encoding/json"
	"strings"
)

// Recipient is one addressee of a bulk submission. Phone and Email are
// optional; the extra fields feed template variable binding.
type Recipient struct {
	Name       string            `json:"name" validate:"required"`
	Phone      string            `json:"phone,omitempty"`
	Email      string            `json:"email,omitempty" validate:"omitempty,email"`
	Department string            `json:"department,omitempty"`
	Position   string            `json:"position,omitempty"`
	Company    string            `json:"company,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Field resolves a recipient attribute by name (case-insensitive).
func (r Recipient) Field(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "name":
		return r.Name, true
	case "phone":
		return r.Phone, true
	case "email":
		return r.Email, true
	case "department":
		return r.Department, true
	case "position":
		return r.Position, true
	case "company":
		return r.Company, true
	}

	for k, v := range r.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// BatchSummary is returned to the submitter. For relay channels Sent and
// Failed stay zero: outcomes arrive later through reconciliation.
type BatchSummary struct {
	Total    int          `json:"total"`
	Sent     int          `json:"sent"`
	Failed   int          `json:"failed"`
	Rejected int          `json:"rejected"`
	BatchID  string       `json:"batch_id"`
	Rows     []MessageLog `json:"rows"`
}

// DeliveryResult is the outcome of one recipient, as reported by a relay
// response, a reconciliation callback or a synchronous gateway.
//
// Channel is optional on callbacks; without it an email identifier means
// the email channel and a phone means WhatsApp.
type DeliveryResult struct {
	Phone     string  `json:"phone,omitempty"`
	Email     string  `json:"email,omitempty"`
	Channel   Channel `json:"channel,omitempty"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
}

// UnmarshalJSON treats a missing "success" as true.
func (r *DeliveryResult) UnmarshalJSON(data []byte) error {
	type plain DeliveryResult
	decoded := plain{Success: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = DeliveryResult(decoded)
	return nil
}

// Outcome converts the result into the outcome of one channel. fallback is
// used when the result names no channel and none can be inferred.
func (r DeliveryResult) Outcome(fallback Channel) ChannelOutcome {
	channel := r.Channel
	if channel != ChannelWhatsApp && channel != ChannelEmail {
		channel = fallback
	}
	if channel != ChannelWhatsApp && channel != ChannelEmail {
		if _, isEmail := r.Identifier(); isEmail {
			channel = ChannelEmail
		} else {
			channel = ChannelWhatsApp
		}
	}

	if r.Success {
		return ChannelOutcome{Channel: channel, Status: StatusSent}
	}
	return Failure(channel, r.Error)
}

// Identifier returns the value used to match this result to log rows and
// whether it is an email (preferred) or a phone number.
func (r DeliveryResult) Identifier() (value string, isEmail bool) {
	if email := strings.TrimSpace(r.Email); email != "" {
		return email, true
	}
	return strings.TrimSpace(r.Phone), false
}

// Callback is the reconciliation payload posted by a relay.
type Callback struct {
	BatchID string           `json:"batch_id" validate:"required"`
	Results []DeliveryResult `json:"results"`
}

type ReconcileResult struct {
	Status        string `json:"status"`
	TotalReceived int    `json:"total_received"`
	ActualUpdates int64  `json:"actual_updates"`
}
