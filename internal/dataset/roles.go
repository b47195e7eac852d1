package dataset

import (
	"iter"
	"strings"
)

// Classifier maps a sender display name to a dialogue role. ok is false when the
// sender cannot be attributed.
type Classifier interface {
	Classify(sender string) (role Role, ok bool)
}

// ExactName assigns the assistant role to senders whose name equals the own name
// exactly (case-sensitive).
type ExactName string

func (n ExactName) Classify(sender string) (Role, bool) {
	if sender == "" {
		return "", false
	}
	if sender == string(n) {
		return RoleAssistant, true
	}
	return RoleUser, true
}

// FoldName is like ExactName but compares under Unicode case folding.
type FoldName string

func (n FoldName) Classify(sender string) (Role, bool) {
	if sender == "" {
		return "", false
	}
	if strings.EqualFold(sender, string(n)) {
		return RoleAssistant, true
	}
	return RoleUser, true
}

// Aliases assigns the assistant role to any of a set of names.
type Aliases struct {
	names map[string]bool
	fold  bool
}

// NewAliases builds an alias classifier. With fold set, matching ignores case.
func NewAliases(names []string, fold bool) *Aliases {
	a := &Aliases{names: make(map[string]bool, len(names)), fold: fold}
	for _, n := range names {
		if n == "" {
			continue
		}
		if fold {
			n = strings.ToLower(n)
		}
		a.names[n] = true
	}
	return a
}

func (a *Aliases) Classify(sender string) (Role, bool) {
	if sender == "" {
		return "", false
	}
	key := sender
	if a.fold {
		key = strings.ToLower(sender)
	}
	if a.names[key] {
		return RoleAssistant, true
	}
	return RoleUser, true
}

// AssignRoles tags every turn with its role and removes turns whose sender cannot
// be attributed. Turn content is never altered.
func AssignRoles(convs iter.Seq[Conversation], c Classifier, stats *Stats) iter.Seq[Conversation] {
	stats = orDiscard(stats)
	return func(yield func(Conversation) bool) {
		for conv := range convs {
			turns := make([]Turn, 0, len(conv.Turns))
			for _, t := range conv.Turns {
				role, ok := c.Classify(t.SenderName)
				if !ok {
					stats.Unattributed++
					continue
				}
				t.Role = role
				turns = append(turns, t)
			}
			conv.Turns = turns
			if !yield(conv) {
				return
			}
		}
	}
}
