package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

const schema = `
CREATE TABLE IF NOT EXISTS sft_examples (
	id           UUID PRIMARY KEY,
	run_id       UUID NOT NULL,
	contact_id   BIGINT NOT NULL,
	contact_name TEXT NOT NULL,
	contact_type TEXT NOT NULL,
	turns        INT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ NOT NULL,
	record       JSON NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sft_examples_run_idx ON sft_examples (run_id);
CREATE INDEX IF NOT EXISTS sft_examples_contact_idx ON sft_examples (contact_id);`

// Example is one kept conversation of a build run.
type Example struct {
	RunID     uuid.UUID
	Contact   dataset.Contact
	Turns     int
	StartedAt time.Time
	EndedAt   time.Time
	Record    dataset.Record
}

// NewExample describes a formatted conversation for storage.
func NewExample(runID uuid.UUID, c dataset.Conversation, rec dataset.Record) Example {
	return Example{
		RunID:     runID,
		Contact:   c.Contact,
		Turns:     len(c.Turns),
		StartedAt: c.Start(),
		EndedAt:   c.End(),
		Record:    rec,
	}
}

// EnsureSchema creates the examples table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// WriteExample inserts one example and returns its id.
func (s *Store) WriteExample(ctx context.Context, ex Example) (uuid.UUID, error) {
	// JSON keeps the text of the JSONL line, key order included.
	line, err := dataset.Marshal(ex.Record)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal record: %w", err)
	}
	record := string(bytes.TrimSuffix(line, []byte("\n")))

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sft_examples (id, run_id, contact_id, contact_name, contact_type, turns, started_at, ended_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, ex.RunID, ex.Contact.ID, ex.Contact.Name, string(ex.Contact.Type), ex.Turns, ex.StartedAt, ex.EndedAt, record,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert example: %w", err)
	}
	return id, nil
}

// RunExamples returns the records stored for a run, oldest conversation first.
func (s *Store) RunExamples(ctx context.Context, runID uuid.UUID) ([]dataset.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT record FROM sft_examples
		WHERE run_id = $1
		ORDER BY started_at, contact_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var out []dataset.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		var rec dataset.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode example: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRun removes every example of a run.
func (s *Store) DeleteRun(ctx context.Context, runID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sft_examples WHERE run_id = $1`, runID)
	if err != nil {
		return 0, fmt.Errorf("delete run: %w", err)
	}
	return tag.RowsAffected(), nil
}
