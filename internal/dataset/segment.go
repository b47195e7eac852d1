package dataset

import (
	"iter"
	"time"
)

// Conversations splits a contact's turns wherever the delta between consecutive
// turn starts reaches gap. The split is sender-agnostic.
func Conversations(turns iter.Seq[Turn], contact Contact, gap time.Duration, stats *Stats) iter.Seq[Conversation] {
	stats = orDiscard(stats)
	joinable := within(func(t Turn) time.Time { return t.Start }, gap)

	return func(yield func(Conversation) bool) {
		for group := range Coalesce(turns, joinable) {
			stats.Conversations++
			if !yield(Conversation{Contact: contact, Turns: group}) {
				return
			}
		}
	}
}
