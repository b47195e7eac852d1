package dataset

import (
	"iter"
	"strings"
	"time"
)

// TurnSeparator joins the texts of messages merged into one turn.
const TurnSeparator = "\n"

// Turns merges consecutive messages from the same sender whose delta to the
// previously merged message is strictly less than window. A delta of exactly
// window starts a new turn.
func Turns(msgs iter.Seq[Message], window time.Duration, stats *Stats) iter.Seq[Turn] {
	stats = orDiscard(stats)
	near := within(func(m Message) time.Time { return m.Timestamp }, window)
	joinable := func(last, next Message) bool {
		return sameSender(last, next) && near(last, next)
	}

	return func(yield func(Turn) bool) {
		for group := range Coalesce(msgs, joinable) {
			stats.Turns++
			if !yield(newTurn(group)) {
				return
			}
		}
	}
}

func sameSender(a, b Message) bool {
	return a.SenderID == b.SenderID && a.SenderName == b.SenderName
}

func newTurn(msgs []Message) Turn {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}
	first, last := msgs[0], msgs[len(msgs)-1]
	return Turn{
		SenderID:   first.SenderID,
		SenderName: first.SenderName,
		Start:      first.Timestamp,
		End:        last.Timestamp,
		Text:       strings.Join(texts, TurnSeparator),
		Messages:   len(msgs),
	}
}
