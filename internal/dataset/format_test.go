package dataset

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"time"
)

func roled(sender string, role Role, text string) Turn {
	return Turn{SenderName: sender, Role: role, Start: base, End: base, Text: text, Messages: 1}
}

func TestFormatter_EntriesInOrder(t *testing.T) {
	f, err := NewFormatter(FormatOptions{OwnName: "Pasquale"})
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}

	rec, err := f.Format(Conversation{Contact: marcoChat, Turns: []Turn{
		roled("Marco", RoleUser, "ciao"),
		roled("Pasquale", RoleAssistant, "ehi"),
	}})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if len(rec.Messages) != 2 {
		t.Fatalf("expected 2 entries without system prompt, got %d", len(rec.Messages))
	}
	if rec.Messages[0] != (Entry{Role: RoleUser, Name: "Marco", Content: "ciao"}) {
		t.Errorf("entry 0 = %+v", rec.Messages[0])
	}
	if rec.Messages[1] != (Entry{Role: RoleAssistant, Name: "Pasquale", Content: "ehi"}) {
		t.Errorf("entry 1 = %+v", rec.Messages[1])
	}
}

func TestFormatter_PersonalSystemPrompt(t *testing.T) {
	f, err := NewFormatter(FormatOptions{OwnName: "Pasquale", SystemPrompt: true})
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	rec, err := f.Format(Conversation{Contact: marcoChat, Turns: []Turn{roled("Marco", RoleUser, "ciao")}})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	sys := rec.Messages[0]
	if sys.Role != RoleSystem || sys.Name != "" {
		t.Fatalf("expected leading unnamed system entry, got %+v", sys)
	}
	want := "You are Pasquale, chatting with Marco. Respond naturally in their conversational style."
	if sys.Content != want {
		t.Errorf("system prompt = %q, want %q", sys.Content, want)
	}
}

func TestFormatter_GroupSystemPromptListsParticipants(t *testing.T) {
	f, err := NewFormatter(FormatOptions{OwnName: "Pasquale", SystemPrompt: true})
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	group := Contact{ID: 9, Name: "Calcetto", Type: PrivateGroup}
	rec, err := f.Format(Conversation{Contact: group, Turns: []Turn{
		roled("Sara", RoleUser, "a"),
		roled("Pasquale", RoleAssistant, "b"),
		roled("Marco", RoleUser, "c"),
		roled("Sara", RoleUser, "d"),
	}})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "You are Pasquale in a group chat 'Calcetto' with Marco, Sara. Respond naturally in the conversational style."
	if rec.Messages[0].Content != want {
		t.Errorf("group prompt = %q", rec.Messages[0].Content)
	}
}

func TestFormatter_GroupSystemPromptExcludesOwnSpellings(t *testing.T) {
	f, err := NewFormatter(FormatOptions{OwnName: "Pasquale", SystemPrompt: true})
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	group := Contact{ID: 9, Name: "G", Type: PrivateGroup}
	want := "You are Pasquale in a group chat 'G' with Marco. Respond naturally in the conversational style."

	tests := []struct {
		name       string
		classifier Classifier
		own        string
	}{
		{"alias", NewAliases([]string{"Pasquale", "Pas"}, false), "Pas"},
		{"folded name", FoldName("Pasquale"), "PASQUALE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(Options{
				TurnWindow:      DefaultTurnWindow,
				ConversationGap: DefaultConversationGap,
				Classifier:      tt.classifier,
				Filter:          FilterOptions{MinTurns: 1, IncludeGroups: true},
				Format:          FormatOptions{OwnName: "Pasquale", SystemPrompt: true},
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raws := []RawMessage{
				{Kind: "message", SenderID: "user2", SenderName: "Marco", Timestamp: base, Text: "ciao"},
				{Kind: "message", SenderID: "user1", SenderName: tt.own, Timestamp: base.Add(time.Minute * 10), Text: "ehi"},
			}
			var recs []Record
			for rec, err := range p.Records(group, slices.Values(raws), nil) {
				if err != nil {
					t.Fatalf("Records: %v", err)
				}
				recs = append(recs, rec)
			}
			if len(recs) != 1 || len(recs[0].Messages) != 3 {
				t.Fatalf("expected 1 record with system + 2 entries, got %+v", recs)
			}
			if recs[0].Messages[0].Content != want {
				t.Errorf("group prompt = %q, want %q", recs[0].Messages[0].Content, want)
			}
			if recs[0].Messages[2].Role != RoleAssistant {
				t.Errorf("own turn role = %q", recs[0].Messages[2].Role)
			}
		})
	}

	rec, err := f.Format(Conversation{Contact: group, Turns: []Turn{
		roled("", RoleUser, "a"),
		roled("Marco", RoleUser, "b"),
		roled("Pas", RoleAssistant, "c"),
	}})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if rec.Messages[0].Content != want {
		t.Errorf("empty and assistant names must be omitted, got %q", rec.Messages[0].Content)
	}
}

func TestFormatter_CustomTemplate(t *testing.T) {
	f, err := NewFormatter(FormatOptions{OwnName: "Pasquale", SystemPrompt: true, PersonalTemplate: "{{.Own}}/{{.Contact}}/{{.Type}}"})
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	rec, _ := f.Format(Conversation{Contact: marcoChat, Turns: []Turn{roled("Marco", RoleUser, "x")}})
	if rec.Messages[0].Content != "Pasquale/Marco/personal_chat" {
		t.Errorf("custom prompt = %q", rec.Messages[0].Content)
	}
}

func TestNewFormatter_RejectsBadTemplates(t *testing.T) {
	if _, err := NewFormatter(FormatOptions{PersonalTemplate: "{{.Own"}); err == nil {
		t.Error("expected parse error")
	}
	if _, err := NewFormatter(FormatOptions{GroupTemplate: "{{.Nickname}}"}); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestMarshal_LineShape(t *testing.T) {
	rec := Record{Messages: []Entry{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Name: "Marco", Content: "a <b> & \"c\" è"},
	}}
	line, err := Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	want := `{"messages":[{"role":"system","content":"sys"},{"role":"user","name":"Marco","content":"a <b> & \"c\" è"}]}` + "\n"
	if string(line) != want {
		t.Errorf("line =\n%s\nwant\n%s", line, want)
	}
}

func TestEncoder_WritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		if err := enc.Encode(Record{Messages: []Entry{{Role: RoleUser, Name: "Marco", Content: "multi\nline"}}}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	if enc.Lines() != 3 {
		t.Errorf("Lines() = %d", enc.Lines())
	}
	if got := strings.Count(buf.String(), "\n"); got != 3 {
		t.Errorf("expected 3 newline-terminated lines, got %d", got)
	}
}
