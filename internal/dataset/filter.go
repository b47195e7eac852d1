package dataset

import "iter"

// DropReason explains why the filter removed a conversation.
type DropReason int

const (
	Keep DropReason = iota
	DropShort
	DropGroup
	DropOneSided
)

func (r DropReason) String() string {
	switch r {
	case Keep:
		return "keep"
	case DropShort:
		return "short"
	case DropGroup:
		return "group"
	case DropOneSided:
		return "one_sided"
	}
	return "unknown"
}

// FilterOptions controls which complete conversations are kept.
type FilterOptions struct {
	// MinTurns is compared against the turn count after merging, which stands in
	// for the configured minimum message count.
	MinTurns        int
	IncludeGroups   bool
	RequireExchange bool // require at least one user and one assistant turn
}

// Decide returns Keep or the first reason the conversation must be dropped.
func (o FilterOptions) Decide(c Conversation) DropReason {
	if c.Contact.Type.IsGroup() && !o.IncludeGroups {
		return DropGroup
	}
	if len(c.Turns) < o.MinTurns {
		return DropShort
	}
	if o.RequireExchange && !hasExchange(c) {
		return DropOneSided
	}
	return Keep
}

func hasExchange(c Conversation) bool {
	var user, assistant bool
	for _, t := range c.Turns {
		switch t.Role {
		case RoleUser:
			user = true
		case RoleAssistant:
			assistant = true
		}
	}
	return user && assistant
}

// Filter passes through only the conversations Decide keeps. It is the single
// point where a whole conversation is held in memory.
func Filter(convs iter.Seq[Conversation], o FilterOptions, stats *Stats) iter.Seq[Conversation] {
	stats = orDiscard(stats)
	return func(yield func(Conversation) bool) {
		for conv := range convs {
			switch o.Decide(conv) {
			case DropGroup:
				stats.DroppedGroup++
				continue
			case DropShort:
				stats.DroppedShort++
				continue
			case DropOneSided:
				stats.DroppedOneSided++
				continue
			}
			stats.Kept++
			if !yield(conv) {
				return
			}
		}
	}
}
