package domain

// BulkRequest submits one free-text message to many recipients over the
// relay channels.
type BulkRequest struct {
	Recipients  []Recipient `json:"recipients" validate:"required,min=1,dive"`
	Content     string      `json:"content" validate:"required"`
	Channel     Channel     `json:"channel" validate:"required,channel"`
	Subject     string      `json:"subject,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
}

type SMSBulkRequest struct {
	Recipients []Recipient `json:"recipients" validate:"required,min=1,dive"`
	Content    string      `json:"content" validate:"required"`
	TestMode   bool        `json:"test_mode,omitempty"`
}

// SMSSingleRequest sends one text message to one phone number.
type SMSSingleRequest struct {
	Phone         string `json:"phone" validate:"required"`
	Message       string `json:"message" validate:"required"`
	RecipientName string `json:"recipient_name,omitempty"`
	TestMode      bool   `json:"test_mode,omitempty"`
}

// TemplateSingleRequest sends an approved WhatsApp template to one phone
// number. Variables map placeholder names to their values.
type TemplateSingleRequest struct {
	Phone         string            `json:"phone" validate:"required"`
	TemplateName  string            `json:"template_name" validate:"required"`
	LanguageCode  string            `json:"language_code,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
	RecipientName string            `json:"recipient_name,omitempty"`
}

// TemplateBulkRequest sends an approved WhatsApp template. VariableMapping
// maps template placeholders to recipient fields, e.g. {"nombre": "name"}.
type TemplateBulkRequest struct {
	TemplateName    string            `json:"template_name" validate:"required"`
	LanguageCode    string            `json:"language_code,omitempty"`
	Recipients      []Recipient       `json:"recipients" validate:"required,min=1,dive"`
	VariableMapping map[string]string `json:"variable_mapping,omitempty"`
}
