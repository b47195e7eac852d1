package dataset

import (
	"math/rand"
	"slices"
	"testing"
	"time"
)

func message(sender string, at time.Duration, text string) Message {
	return Message{SenderID: "id-" + sender, SenderName: sender, Timestamp: base.Add(at), Text: text}
}

func collectTurns(msgs []Message, window time.Duration) []Turn {
	var turns []Turn
	for t := range Turns(slices.Values(msgs), window, nil) {
		turns = append(turns, t)
	}
	return turns
}

func TestTurns_MergesSameSenderWithinWindow(t *testing.T) {
	msgs := []Message{
		message("Marco", 0, "ciao"),
		message("Marco", 2*time.Minute, "ci sei?"),
	}

	turns := collectTurns(msgs, 5*time.Minute)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Text != "ciao\nci sei?" {
		t.Errorf("text = %q", turns[0].Text)
	}
	if !turns[0].Start.Equal(base) {
		t.Errorf("start = %v, want first message timestamp %v", turns[0].Start, base)
	}
	if !turns[0].End.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("end = %v", turns[0].End)
	}
	if turns[0].Messages != 2 {
		t.Errorf("expected 2 merged messages, got %d", turns[0].Messages)
	}
}

func TestTurns_ExactWindowStartsNewTurn(t *testing.T) {
	msgs := []Message{
		message("Marco", 0, "one"),
		message("Marco", 5*time.Minute, "two"),
	}
	turns := collectTurns(msgs, 5*time.Minute)
	if len(turns) != 2 {
		t.Fatalf("expected delta equal to the window to split, got %d turns", len(turns))
	}
}

func TestTurns_WindowSlidesFromLastMessage(t *testing.T) {
	msgs := []Message{
		message("Marco", 0, "a"),
		message("Marco", 4*time.Minute, "b"),
		message("Marco", 8*time.Minute, "c"),
		message("Marco", 12*time.Minute, "d"),
	}
	turns := collectTurns(msgs, 5*time.Minute)
	if len(turns) != 1 {
		t.Fatalf("expected 1 sliding turn, got %d", len(turns))
	}
	if turns[0].Text != "a\nb\nc\nd" {
		t.Errorf("text = %q", turns[0].Text)
	}
}

func TestTurns_SenderChangeSplits(t *testing.T) {
	msgs := []Message{
		message("Marco", 0, "a"),
		message("Pasquale", 10*time.Second, "b"),
		message("Marco", 20*time.Second, "c"),
	}
	turns := collectTurns(msgs, 5*time.Minute)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[1].SenderName != "Pasquale" {
		t.Errorf("turn 1 sender = %q", turns[1].SenderName)
	}
}

func TestTurns_SingleMessage(t *testing.T) {
	turns := collectTurns([]Message{message("Marco", 0, "solo")}, 5*time.Minute)
	if len(turns) != 1 || turns[0].Text != "solo" {
		t.Fatalf("expected one turn for a single message, got %+v", turns)
	}
}

func TestTurns_CountsTurns(t *testing.T) {
	msgs := []Message{message("Marco", 0, "a"), message("Pasquale", time.Second, "b")}
	var stats Stats
	for range Turns(slices.Values(msgs), time.Minute, &stats) {
	}
	if stats.Turns != 2 {
		t.Errorf("expected 2 turns counted, got %d", stats.Turns)
	}
}

// randomStream builds a chronological two-party stream with irregular gaps.
func randomStream(seed int64, n int) []Message {
	rng := rand.New(rand.NewSource(seed))
	senders := []string{"Marco", "Pasquale"}
	at := time.Duration(0)
	msgs := make([]Message, n)
	for i := range msgs {
		switch rng.Intn(4) {
		case 0:
			at += time.Duration(rng.Intn(90)) * time.Minute
		default:
			at += time.Duration(rng.Intn(400)) * time.Second
		}
		msgs[i] = message(senders[rng.Intn(2)], at, "m")
	}
	return msgs
}

func TestTurns_Invariants(t *testing.T) {
	window := 5 * time.Minute
	for seed := int64(1); seed <= 20; seed++ {
		msgs := randomStream(seed, 300)
		turns := collectTurns(msgs, window)

		// Every message lands in exactly one turn, in order.
		total := 0
		for _, tr := range turns {
			total += tr.Messages
		}
		if total != len(msgs) {
			t.Fatalf("seed %d: turns hold %d messages, want %d", seed, total, len(msgs))
		}

		// Replay the stream against the turns to check membership.
		i := 0
		for ti, tr := range turns {
			for k := 0; k < tr.Messages; k++ {
				m := msgs[i+k]
				if m.SenderName != tr.SenderName {
					t.Fatalf("seed %d turn %d: mixed senders", seed, ti)
				}
				if k > 0 && m.Timestamp.Sub(msgs[i+k-1].Timestamp) >= window {
					t.Fatalf("seed %d turn %d: delta reaches window inside a turn", seed, ti)
				}
			}
			i += tr.Messages

			if ti > 0 && turns[ti-1].Start.After(tr.Start) {
				t.Fatalf("seed %d: turns out of order at %d", seed, ti)
			}
			if ti > 0 && turns[ti-1].SenderName == tr.SenderName && tr.Start.Sub(turns[ti-1].End) < window {
				t.Fatalf("seed %d: turn %d should have merged into its predecessor", seed, ti)
			}
		}
	}
}
