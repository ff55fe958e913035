package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// MessageDirection indicates whether a log entry was sent or received.
type MessageDirection string

const (
	DirectionSent     MessageDirection = "sent"
	DirectionReceived MessageDirection = "received"
)

// MessageLogEntry is one immutable entry in an instance's message log.
type MessageLogEntry struct {
	ID        string           `json:"id"`
	Direction MessageDirection `json:"direction"`
	// To holds the counterpart address in normalized phone-number form,
	// regardless of direction.
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageLogEntry builds an entry with a fresh time-ordered id and the
// counterpart address normalized.
func NewMessageLogEntry(direction MessageDirection, counterpart, content string) MessageLogEntry {
	return MessageLogEntry{
		ID:        NewEntryID(),
		Direction: direction,
		To:        NormalizePhoneNumber(counterpart),
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewEntryID returns a time-ordered, collision-resistant identifier:
// the millisecond timestamp in base-36 followed by a random suffix.
func NewEntryID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to
		// the nanosecond clock so ids stay unique within a process.
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(buf)
}

// NormalizePhoneNumber converts a transport address (JID such as
// "15551234567@s.whatsapp.net") into a canonical phone-number form.
// Addresses with 10+ digits gain a "+" prefix; shorter ones are returned
// as-is after stripping the JID suffix.
func NormalizePhoneNumber(address string) string {
	if address == "" {
		return address
	}
	phoneOnly := address
	if idx := strings.IndexByte(address, '@'); idx >= 0 {
		phoneOnly = address[:idx]
	}
	if len(phoneOnly) >= 10 && !strings.HasPrefix(phoneOnly, "+") {
		return "+" + phoneOnly
	}
	return phoneOnly
}
