package domain

import (
	"strings"
	"time"
)

// MatchType defines how a rule's trigger is compared against a message.
type MatchType string

const (
	MatchTypeExact    MatchType = "exact"
	MatchTypeContains MatchType = "contains"
)

// AutoReplyRule describes one configurable auto-reply for an instance.
type AutoReplyRule struct {
	ID             string    `json:"id"`
	InstanceID     string    `json:"instance_id"`
	FromNumber     string    `json:"from_number"` // empty matches any sender
	TriggerMessage string    `json:"trigger_message"`
	ReplyMessage   string    `json:"reply_message"`
	CaseSensitive  bool      `json:"case_sensitive"`
	MatchType      MatchType `json:"match_type"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Matches reports whether the rule fires for a message with the given
// sender address and text. The sender filter, when set, is a
// case-sensitive substring check against the raw address; the trigger
// comparison is lowercased first unless the rule is case-sensitive.
func (r AutoReplyRule) Matches(senderAddress, text string) bool {
	if r.FromNumber != "" && !strings.Contains(senderAddress, r.FromNumber) {
		return false
	}

	trigger := r.TriggerMessage
	incoming := text
	if !r.CaseSensitive {
		trigger = strings.ToLower(trigger)
		incoming = strings.ToLower(incoming)
	}

	if r.MatchType == MatchTypeExact {
		return trigger == incoming
	}
	return strings.Contains(incoming, trigger)
}
