package domain

// AttachmentPayload is an attachment transmitted inline to a relay.
type AttachmentPayload struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// RelayRecipient is a recipient entry of an aggregated relay request,
// carrying its personalized message.
type RelayRecipient struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

type RelayRequest struct {
	BatchID         string              `json:"batch_id,omitempty"`
	Channel         Channel             `json:"channel"`
	Recipients      []RelayRecipient    `json:"recipients"`
	Message         string              `json:"message"`
	Subject         string              `json:"subject,omitempty"`
	Attachments     []AttachmentPayload `json:"attachments"`
	TotalRecipients int                 `json:"total_recipients"`
}

// RelayResponse is the relay acknowledgement. Every field is optional;
// use Normalize to read it with defaults applied.
type RelayResponse struct {
	Success *bool            `json:"success,omitempty"`
	Sent    *int             `json:"sent,omitempty"`
	Failed  *int             `json:"failed,omitempty"`
	Results []DeliveryResult `json:"results,omitempty"`
	Error   *string          `json:"error,omitempty"`
}

// RelayOutcome is a RelayResponse with defaults applied:
// success=true, sent=total, failed=0, results=empty, error="".
type RelayOutcome struct {
	Success bool
	Sent    int
	Failed  int
	Results []DeliveryResult
	Error   string
}

func (r *RelayResponse) Normalize(total int) RelayOutcome {
	out := RelayOutcome{Success: true, Sent: total, Results: []DeliveryResult{}}
	if r == nil {
		return out
	}
	if r.Success != nil {
		out.Success = *r.Success
	}
	if r.Sent != nil {
		out.Sent = *r.Sent
	}
	if r.Failed != nil {
		out.Failed = *r.Failed
	}
	if r.Results != nil {
		out.Results = r.Results
	}
	if r.Error != nil {
		out.Error = *r.Error
	}
	return out
}
