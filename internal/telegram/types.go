package telegram

import (
	"encoding/json"
	"iter"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

// exportChat is one entry of a Telegram export's chat list.
type exportChat struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Messages []exportMessage `json:"messages"`
}

// exportMessage is a single message record in a Telegram export.
type exportMessage struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Date      string          `json:"date"`
	DateUnix  string          `json:"date_unixtime"`
	From      string          `json:"from"`
	FromID    string          `json:"from_id"`
	Text      json.RawMessage `json:"text"`
	MediaType string          `json:"media_type"`
	Photo     string          `json:"photo"`
	Action    string          `json:"action"`
}

// exportDateLayout is the layout of the "date" field, written without a zone.
const exportDateLayout = "2006-01-02T15:04:05"

// Chat is one decoded chat of an export.
type Chat struct {
	Contact dataset.Contact

	messages []exportMessage
	raw      json.RawMessage
}

// Len returns the number of records in the chat, service records included.
func (c *Chat) Len() int {
	return len(c.messages)
}

// JSON returns the chat object exactly as it appeared in the export.
func (c *Chat) JSON() json.RawMessage {
	return c.raw
}

// Messages lazily converts the chat's records into raw pipeline messages.
func (c *Chat) Messages() iter.Seq[dataset.RawMessage] {
	return func(yield func(dataset.RawMessage) bool) {
		for i := range c.messages {
			if !yield(c.messages[i].toRaw()) {
				return
			}
		}
	}
}

func (m exportMessage) toRaw() dataset.RawMessage {
	return dataset.RawMessage{
		ID:         m.ID,
		Kind:       m.Type,
		SenderID:   m.FromID,
		SenderName: m.From,
		Timestamp:  m.timestamp(),
		Text:       flattenText(m.Text),
		MediaType:  m.mediaType(),
	}
}

// mediaType reports the attachment kind. Photos carry a "photo" path instead of
// a media_type.
func (m exportMessage) mediaType() string {
	if m.MediaType == "" && m.Photo != "" {
		return "photo"
	}
	return m.MediaType
}

// timestamp prefers the unix field. The zoneless "date" field is read as UTC so
// that output does not depend on the host's zone. A zero time marks the record
// as malformed downstream.
func (m exportMessage) timestamp() time.Time {
	if m.DateUnix != "" {
		if n, err := strconv.ParseInt(m.DateUnix, 10, 64); err == nil {
			return time.Unix(n, 0).UTC()
		}
	}
	if m.Date != "" {
		if ts, err := time.ParseInLocation(exportDateLayout, m.Date, time.UTC); err == nil {
			return ts
		}
	}
	return time.Time{}
}
