package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
	"github.com/MikeSquared-Agency/mimic/internal/hermes"
)

// Settings is the part of the configuration that shapes the dataset.
type Settings struct {
	TurnWindow      string `json:"turn_window"`
	ConversationGap string `json:"conversation_gap"`
	MinTurns        int    `json:"min_messages"`
	IncludeGroups   bool   `json:"include_groups"`
	RequireExchange bool   `json:"require_exchange"`
	SystemPrompt    bool   `json:"system_prompt"`
	OwnName         string `json:"own_name"`
	Workers         int    `json:"workers"`
}

// ContactSummary is one chat's contribution to a run.
type ContactSummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Messages      int    `json:"messages"`
	Conversations int    `json:"conversations"`
	Examples      int    `json:"examples"`
}

// Report describes one build run.
type Report struct {
	RunID        uuid.UUID        `json:"run_id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Output       string           `json:"output,omitempty"`
	Settings     Settings         `json:"settings"`
	Chats        int              `json:"chats"`
	ChatsSkipped int              `json:"chats_skipped"`
	Examples     int              `json:"examples"`
	Empty        bool             `json:"empty"`
	Stats        dataset.Stats    `json:"stats"`
	Contacts     []ContactSummary `json:"contacts"`
	Errors       []string         `json:"errors"`
}

func NewReport(opts dataset.Options, workers int) *Report {
	return &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Settings: Settings{
			TurnWindow:      opts.TurnWindow.String(),
			ConversationGap: opts.ConversationGap.String(),
			MinTurns:        opts.Filter.MinTurns,
			IncludeGroups:   opts.Filter.IncludeGroups,
			RequireExchange: opts.Filter.RequireExchange,
			SystemPrompt:    opts.Format.SystemPrompt,
			OwnName:         opts.Format.OwnName,
			Workers:         workers,
		},
		Contacts: []ContactSummary{},
		Errors:   []string{},
	}
}

// AddError records a non-fatal processing error.
func (r *Report) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddContact records a processed dialogue chat.
func (r *Report) AddContact(c dataset.Contact, s dataset.Stats, examples int) {
	r.Contacts = append(r.Contacts, ContactSummary{
		ID:            c.ID,
		Name:          c.Name,
		Type:          string(c.Type),
		Messages:      s.Messages,
		Conversations: s.Conversations,
		Examples:      examples,
	})
}

// Finish stamps the end of the run.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
	r.Empty = r.Examples == 0
}

// Elapsed returns the run duration, or the time since start for an unfinished run.
func (r *Report) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Event converts the report into the NATS announcement.
func (r *Report) Event() hermes.DatasetBuilt {
	return hermes.DatasetBuilt{
		RunID:         r.RunID.String(),
		Output:        r.Output,
		Chats:         r.Chats,
		Examples:      r.Examples,
		Messages:      r.Stats.Messages,
		Conversations: r.Stats.Conversations,
		Errors:        len(r.Errors),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// Save writes the report as indented JSON, creating parent directories. A
// leading "~/" is expanded to the home directory.
func (r *Report) Save(path string) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
