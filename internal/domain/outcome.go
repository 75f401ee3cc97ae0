package domain

import "strings"

const defaultFailureReason = "delivery failed"

// ChannelOutcome is the delivery result of one relay channel for one row.
type ChannelOutcome struct {
	Channel Channel       `db:"channel"`
	Status  MessageStatus `db:"status"`
	Error   *string       `db:"error_message"`
}

func Sent(channel Channel) ChannelOutcome {
	return ChannelOutcome{Channel: channel, Status: StatusSent}
}

// Failure builds a failed outcome; a blank reason becomes "delivery failed".
func Failure(channel Channel, reason string) ChannelOutcome {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFailureReason
	}
	return ChannelOutcome{Channel: channel, Status: StatusFailed, Error: &reason}
}

func (c Channel) label() string {
	switch c {
	case ChannelWhatsApp:
		return "WhatsApp"
	case ChannelEmail:
		return "Email"
	}
	return string(c)
}

// DeliveryChannels lists the relay channels the row was handed to, in
// resolution order. A "both" row only waits on the channels it has an
// address for.
func (m MessageLog) DeliveryChannels() []Channel {
	if m.Channel != ChannelBoth {
		return []Channel{m.Channel}
	}

	var channels []Channel
	if StringValue(m.RecipientPhone) != "" {
		channels = append(channels, ChannelWhatsApp)
	}
	if StringValue(m.RecipientEmail) != "" {
		channels = append(channels, ChannelEmail)
	}
	return channels
}

// Resolve folds the channel outcomes recorded so far into the row's final
// status. done is false while a delivery channel has not reported.
//
// Single-channel rows take their outcome as is. A "both" row fails when
// either channel failed, with reasons joined as "WhatsApp: ...; Email: ...".
func (m MessageLog) Resolve(outcomes []ChannelOutcome) (status MessageStatus, errMsg *string, done bool) {
	if m.Channel != ChannelBoth {
		if len(outcomes) == 0 {
			return StatusPending, nil, false
		}
		return outcomes[0].Status, outcomes[0].Error, true
	}

	byChannel := make(map[Channel]ChannelOutcome, len(outcomes))
	for _, o := range outcomes {
		if _, seen := byChannel[o.Channel]; !seen {
			byChannel[o.Channel] = o
		}
	}

	channels := m.DeliveryChannels()
	if len(channels) == 0 {
		return StatusPending, nil, false
	}

	var reasons []string
	for _, ch := range channels {
		o, ok := byChannel[ch]
		if !ok {
			return StatusPending, nil, false
		}
		if o.Status == StatusFailed {
			reason := StringValue(o.Error)
			if reason == "" {
				reason = defaultFailureReason
			}
			reasons = append(reasons, ch.label()+": "+reason)
		}
	}

	if len(reasons) == 0 {
		return StatusSent, nil, true
	}
	joined := strings.Join(reasons, "; ")
	return StatusFailed, &joined, true
}
