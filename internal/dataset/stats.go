package dataset

// Stats counts what each pipeline stage saw, kept and dropped. A nil *Stats is valid
// and records nothing.
type Stats struct {
	Records   int `json:"records"`
	Messages  int `json:"messages"`
	Service   int `json:"service"`
	Empty     int `json:"empty"`
	Malformed int `json:"malformed"`
	Media     int `json:"media"`

	Turns        int `json:"turns"`
	Unattributed int `json:"unattributed_turns"`

	Conversations   int `json:"conversations"`
	Kept            int `json:"kept"`
	DroppedShort    int `json:"dropped_short"`
	DroppedGroup    int `json:"dropped_group"`
	DroppedOneSided int `json:"dropped_one_sided"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	if s == nil {
		return
	}
	s.Records += o.Records
	s.Messages += o.Messages
	s.Service += o.Service
	s.Empty += o.Empty
	s.Malformed += o.Malformed
	s.Media += o.Media
	s.Turns += o.Turns
	s.Unattributed += o.Unattributed
	s.Conversations += o.Conversations
	s.Kept += o.Kept
	s.DroppedShort += o.DroppedShort
	s.DroppedGroup += o.DroppedGroup
	s.DroppedOneSided += o.DroppedOneSided
}

// Dropped returns the number of conversations removed by the filter.
func (s Stats) Dropped() int {
	return s.DroppedShort + s.DroppedGroup + s.DroppedOneSided
}

// orDiscard lets stages count unconditionally.
func orDiscard(s *Stats) *Stats {
	if s == nil {
		return &Stats{}
	}
	return s
}
