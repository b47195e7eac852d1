package build

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatSummary renders the run totals, for the terminal and for Slack.
func FormatSummary(r *Report) string {
	s := r.Stats
	var sb strings.Builder
	sb.WriteString("*Dataset Build Summary*\n")
	fmt.Fprintf(&sb, "Run: %s\n", r.RunID)
	if r.Output != "" {
		fmt.Fprintf(&sb, "Output: %s\n", r.Output)
	}
	fmt.Fprintf(&sb, "Chats processed: %d (%d skipped)\n", r.Chats, r.ChatsSkipped)
	fmt.Fprintf(&sb, "Records read: %d (service %d, empty %d, malformed %d, media %d)\n", s.Records, s.Service, s.Empty, s.Malformed, s.Media)
	fmt.Fprintf(&sb, "Messages included: %d\n", s.Messages)
	fmt.Fprintf(&sb, "Turns: %d (%d unattributed)\n", s.Turns, s.Unattributed)
	fmt.Fprintf(&sb, "Conversations: %d (kept %d, too short %d, group %d, one-sided %d)\n",
		s.Conversations, s.Kept, s.DroppedShort, s.DroppedGroup, s.DroppedOneSided)
	if s.Conversations > 0 {
		fmt.Fprintf(&sb, "Average messages per conversation: %.1f\n", float64(s.Messages)/float64(s.Conversations))
	}
	fmt.Fprintf(&sb, "Examples written: %d\n", r.Examples)
	fmt.Fprintf(&sb, "Errors: %d\n", len(r.Errors))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, "Elapsed: %s\n", r.Elapsed().Round(time.Millisecond))
	}
	if r.Examples == 0 {
		sb.WriteString("No conversations met the filters. Check min_messages, include_groups and own_name.\n")
	}
	return sb.String()
}

// FormatContacts lists contacts by examples produced, most first.
func FormatContacts(r *Report) string {
	contacts := append([]ContactSummary(nil), r.Contacts...)
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Examples > contacts[j].Examples
	})

	var sb strings.Builder
	sb.WriteString("*Per contact*\n")
	for _, c := range contacts {
		fmt.Fprintf(&sb, "  - %s [%s]: %d examples from %d conversations, %d messages\n",
			c.Name, c.Type, c.Examples, c.Conversations, c.Messages)
	}
	return sb.String()
}
