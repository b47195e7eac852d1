//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mimic/internal/dataset"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_WriteAndReadExamples(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	start := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)

	conv := dataset.Conversation{
		Contact: dataset.Contact{ID: 168168628, Name: "Marco", Type: dataset.PersonalChat},
		Turns: []dataset.Turn{
			{SenderName: "Marco", Role: dataset.RoleUser, Start: start, End: start, Text: "ciao <3"},
			{SenderName: "Pasquale", Role: dataset.RoleAssistant, Start: start.Add(time.Minute), End: start.Add(time.Minute), Text: "ehi"},
		},
	}
	rec := dataset.Record{Messages: []dataset.Entry{
		{Role: dataset.RoleUser, Name: "Marco", Content: "ciao <3"},
		{Role: dataset.RoleAssistant, Name: "Pasquale", Content: "ehi"},
	}}

	t.Cleanup(func() {
		_, _ = s.DeleteRun(ctx, runID)
	})

	id, err := s.WriteExample(ctx, NewExample(runID, conv, rec))
	if err != nil {
		t.Fatalf("WriteExample failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected non-nil example ID")
	}

	var turns int
	var contactType, stored string
	err = s.pool.QueryRow(ctx, "SELECT turns, contact_type, record::text FROM sft_examples WHERE id = $1", id).Scan(&turns, &contactType, &stored)
	if err != nil {
		t.Fatalf("query example failed: %v", err)
	}
	if turns != 2 || contactType != "personal_chat" {
		t.Errorf("stored turns=%d type=%q", turns, contactType)
	}
	line, err := dataset.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if stored+"\n" != string(line) {
		t.Errorf("stored record %s differs from the JSONL line %s", stored, line)
	}

	got, err := s.RunExamples(ctx, runID)
	if err != nil {
		t.Fatalf("RunExamples failed: %v", err)
	}
	if len(got) != 1 || len(got[0].Messages) != 2 {
		t.Fatalf("expected 1 record with 2 entries, got %+v", got)
	}
	if got[0].Messages[0] != rec.Messages[0] {
		t.Errorf("entry 0 = %+v, want %+v", got[0].Messages[0], rec.Messages[0])
	}

	n, err := s.DeleteRun(ctx, runID)
	if err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted row, got %d", n)
	}
}
