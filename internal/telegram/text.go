package telegram

import (
	"encoding/json"
	"strings"
)

// textEntity is one element of a rich-text array (links, bold, mentions...).
type textEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// flattenText returns the plain text of a message "text" field, which is either a
// string or an array mixing strings and entity objects.
func flattenText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	// Try as plain string first.
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			sb.WriteString(s)
			continue
		}
		var e textEntity
		if err := json.Unmarshal(part, &e); err == nil {
			sb.WriteString(e.Text)
		}
	}
	return sb.String()
}
