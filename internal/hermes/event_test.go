package hermes

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDatasetBuiltParsing(t *testing.T) {
	raw := `{
		"run_id": "0b8f6c1e-7d5a-4c1e-9a52-3f1c2b7d9e10",
		"output": "dataset.jsonl",
		"chats": 12,
		"examples": 40,
		"messages": 9120,
		"conversations": 311,
		"errors": 1,
		"started_at": "2024-03-09T18:00:00Z",
		"finished_at": "2024-03-09T18:00:04Z"
	}`

	var ev DatasetBuilt
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("failed to parse DatasetBuilt: %v", err)
	}

	if ev.RunID != "0b8f6c1e-7d5a-4c1e-9a52-3f1c2b7d9e10" {
		t.Errorf("expected run_id, got '%s'", ev.RunID)
	}
	if ev.Examples != 40 || ev.Chats != 12 || ev.Errors != 1 {
		t.Errorf("unexpected counts %+v", ev)
	}
	if got := ev.FinishedAt.Sub(ev.StartedAt); got != 4*time.Second {
		t.Errorf("expected 4s run, got %s", got)
	}
}

func TestDatasetBuiltOmitsEmptyOutput(t *testing.T) {
	data, err := json.Marshal(DatasetBuilt{RunID: "r"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, ok := fields["output"]; ok {
		t.Error("empty output should be omitted")
	}
	if _, ok := fields["examples"]; !ok {
		t.Error("zero examples must still be present")
	}
}

func TestSubjectDatasetBuiltConstant(t *testing.T) {
	if SubjectDatasetBuilt != "swarm.mimic.dataset.built" {
		t.Errorf("expected SubjectDatasetBuilt 'swarm.mimic.dataset.built', got '%s'", SubjectDatasetBuilt)
	}
}
