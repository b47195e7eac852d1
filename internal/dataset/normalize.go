package dataset

import (
	"iter"
	"strings"
)

// SkipReason explains why a raw record was not turned into a Message.
type SkipReason int

const (
	Included SkipReason = iota
	SkipService
	SkipEmpty
	SkipMalformed
	SkipMedia
)

func (r SkipReason) String() string {
	switch r {
	case Included:
		return "included"
	case SkipService:
		return "service"
	case SkipEmpty:
		return "empty"
	case SkipMalformed:
		return "malformed"
	case SkipMedia:
		return "media"
	}
	return "unknown"
}

// systemSenders are Telegram-owned accounts whose messages are notifications, not dialogue.
var systemSenders = map[string]bool{
	"Telegram": true,
	"Group":    true,
	"Channel":  true,
}

const telegramServiceID = "user777000"

// Normalize decides whether a raw record is included and, if so, returns it cleaned.
// Text is only trimmed; wording, case and punctuation are preserved.
func Normalize(raw RawMessage) (Message, SkipReason) {
	if raw.Kind != "" && raw.Kind != "message" {
		return Message{}, SkipService
	}
	if systemSenders[raw.SenderName] || raw.SenderID == telegramServiceID {
		return Message{}, SkipService
	}
	if raw.SenderID == "" || raw.Timestamp.IsZero() {
		return Message{}, SkipMalformed
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		if raw.MediaType != "" {
			return Message{}, SkipMedia
		}
		return Message{}, SkipEmpty
	}

	return Message{
		SenderID:   raw.SenderID,
		SenderName: raw.SenderName,
		Timestamp:  raw.Timestamp,
		Text:       text,
	}, Included
}

// Messages lazily normalizes raws, counting every record and skip into stats.
func Messages(raws iter.Seq[RawMessage], stats *Stats) iter.Seq[Message] {
	stats = orDiscard(stats)
	return func(yield func(Message) bool) {
		for raw := range raws {
			stats.Records++
			msg, reason := Normalize(raw)
			switch reason {
			case SkipService:
				stats.Service++
				continue
			case SkipEmpty:
				stats.Empty++
				continue
			case SkipMalformed:
				stats.Malformed++
				continue
			case SkipMedia:
				stats.Media++
				continue
			}
			stats.Messages++
			if !yield(msg) {
				return
			}
		}
	}
}
