package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"
)

const (
	DefaultPersonalTemplate = "You are {{.Own}}, chatting with {{.Contact}}. Respond naturally in their conversational style."
	DefaultGroupTemplate    = "You are {{.Own}} in a group chat '{{.Contact}}' with {{.Participants}}. Respond naturally in the conversational style."
)

// FormatOptions controls how conversations are rendered.
type FormatOptions struct {
	OwnName          string
	SystemPrompt     bool
	PersonalTemplate string // defaults to DefaultPersonalTemplate
	GroupTemplate    string // defaults to DefaultGroupTemplate
}

// Formatter renders kept conversations into records.
type Formatter struct {
	own      string
	system   bool
	personal *template.Template
	group    *template.Template
}

// promptData is the value system templates are executed against.
type promptData struct {
	Own          string
	Contact      string
	Type         string
	Participants string
}

func NewFormatter(o FormatOptions) (*Formatter, error) {
	f := &Formatter{own: o.OwnName, system: o.SystemPrompt}

	var err error
	if f.personal, err = parseTemplate("personal", o.PersonalTemplate, DefaultPersonalTemplate); err != nil {
		return nil, err
	}
	if f.group, err = parseTemplate("group", o.GroupTemplate, DefaultGroupTemplate); err != nil {
		return nil, err
	}
	return f, nil
}

func parseTemplate(name, text, fallback string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s system template: %w", name, err)
	}
	// Unknown fields only fail at execution; surface them now.
	if err := tmpl.Execute(io.Discard, promptData{}); err != nil {
		return nil, fmt.Errorf("check %s system template: %w", name, err)
	}
	return tmpl, nil
}

// Format renders one entry per turn in order, preceded by a system entry when enabled.
func (f *Formatter) Format(c Conversation) (Record, error) {
	rec := Record{Messages: make([]Entry, 0, len(c.Turns)+1)}

	if f.system {
		prompt, err := f.systemPrompt(c)
		if err != nil {
			return Record{}, err
		}
		rec.Messages = append(rec.Messages, Entry{Role: RoleSystem, Content: prompt})
	}

	for _, t := range c.Turns {
		rec.Messages = append(rec.Messages, Entry{
			Role:    t.Role,
			Name:    t.SenderName,
			Content: t.Text,
		})
	}
	return rec, nil
}

func (f *Formatter) systemPrompt(c Conversation) (string, error) {
	tmpl := f.personal
	if c.Contact.Type.IsGroup() {
		tmpl = f.group
	}
	data := promptData{
		Own:          f.own,
		Contact:      c.Contact.Name,
		Type:         string(c.Contact.Type),
		Participants: strings.Join(participants(c), ", "),
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return sb.String(), nil
}

// participants returns the sorted distinct names of the senders of user turns.
func participants(c Conversation) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range c.Turns {
		if t.Role == RoleAssistant || t.SenderName == "" || seen[t.SenderName] {
			continue
		}
		seen[t.SenderName] = true
		names = append(names, t.SenderName)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes a record as a single newline-terminated JSON line. HTML
// characters are written verbatim.
func Marshal(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Encoder writes records as JSON Lines. Each record is fully encoded before any
// of it reaches the underlying writer.
type Encoder struct {
	w     io.Writer
	lines int
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(rec Record) error {
	line, err := Marshal(rec)
	if err != nil {
		return err
	}
	return e.WriteLine(line)
}

// WriteLine writes an already marshaled record line.
func (e *Encoder) WriteLine(line []byte) error {
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	e.lines++
	return nil
}

// Lines returns the number of records written so far.
func (e *Encoder) Lines() int {
	return e.lines
}
