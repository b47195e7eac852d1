package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrChatNotFound is returned by Find when no chat has the requested id.
var ErrChatNotFound = errors.New("chat not found")

// Summary describes a chat without its messages.
type Summary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Messages int    `json:"messages"`
}

// Summarize returns the listing entry for a chat. Missing names and types are
// shown as "N/A".
func Summarize(c *Chat) Summary {
	s := Summary{
		ID:       c.Contact.ID,
		Name:     c.Contact.Name,
		Type:     string(c.Contact.Type),
		Messages: c.Len(),
	}
	if s.Name == "" {
		s.Name = "N/A"
	}
	if s.Type == "" {
		s.Type = "N/A"
	}
	return s
}

// Query selects chats. Zero fields match everything.
type Query struct {
	Name  string // case-insensitive substring
	Type  string // exact
	ID    int64
	HasID bool
}

func (q Query) Match(s Summary) bool {
	if q.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(q.Name)) {
		return false
	}
	if q.Type != "" && s.Type != q.Type {
		return false
	}
	if q.HasID && s.ID != q.ID {
		return false
	}
	return true
}

// List returns the summaries of all chats matching q, in export order. Chats
// that fail to decode are skipped.
func List(r io.Reader, q Query) ([]Summary, error) {
	var out []Summary
	for chat, err := range Chats(r) {
		if err != nil {
			var ce *ChatError
			if errors.As(err, &ce) {
				continue
			}
			return nil, err
		}
		if s := Summarize(chat); q.Match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Find returns the first chat with the given id.
func Find(r io.Reader, id int64) (*Chat, error) {
	for chat, err := range Chats(r) {
		if err != nil {
			var ce *ChatError
			if errors.As(err, &ce) {
				continue
			}
			return nil, err
		}
		if chat.Contact.ID == id {
			return chat, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrChatNotFound, id)
}

// WriteChat writes a chat as an indented JSON document that Chats can read back
// as a single chat.
func WriteChat(w io.Writer, c *Chat) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.JSON(), "", "  "); err != nil {
		return fmt.Errorf("indent chat: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteTable renders summaries as the fixed-width listing used by the CLI.
func WriteTable(w io.Writer, summaries []Summary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No chats found matching the criteria.")
		return err
	}

	rule := strings.Repeat("-", 90)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total chats found: %d\n\n", len(summaries))
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "%-15s %-20s %-40s %s\n", "ID", "Type", "Name", "Messages")
	sb.WriteString(rule + "\n")
	for _, s := range summaries {
		name := s.Name
		if r := []rune(name); len(r) > 37 {
			name = string(r[:37]) + "..."
		}
		fmt.Fprintf(&sb, "%-15d %-20s %-40s %d\n", s.ID, s.Type, name, s.Messages)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
