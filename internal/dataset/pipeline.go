package dataset

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// ErrInvalidOptions is wrapped by every pipeline option validation failure.
var ErrInvalidOptions = errors.New("invalid pipeline options")

const (
	DefaultTurnWindow      = 5 * time.Minute
	DefaultConversationGap = 60 * time.Minute
	DefaultMinTurns        = 20
)

// Options configures a Pipeline.
type Options struct {
	TurnWindow      time.Duration
	ConversationGap time.Duration
	Classifier      Classifier
	Filter          FilterOptions
	Format          FormatOptions
}

// Validate checks the options before any message is processed.
func (o Options) Validate() error {
	if o.TurnWindow <= 0 {
		return fmt.Errorf("%w: turn window must be positive, got %s", ErrInvalidOptions, o.TurnWindow)
	}
	if o.ConversationGap <= 0 {
		return fmt.Errorf("%w: conversation gap must be positive, got %s", ErrInvalidOptions, o.ConversationGap)
	}
	if o.ConversationGap <= o.TurnWindow {
		return fmt.Errorf("%w: conversation gap (%s) must be greater than turn window (%s)",
			ErrInvalidOptions, o.ConversationGap, o.TurnWindow)
	}
	if o.Filter.MinTurns < 1 {
		return fmt.Errorf("%w: minimum messages must be at least 1, got %d", ErrInvalidOptions, o.Filter.MinTurns)
	}
	if o.Classifier == nil {
		return fmt.Errorf("%w: role classifier is required", ErrInvalidOptions)
	}
	return nil
}

// Pipeline turns one contact's raw message stream into kept conversations and
// their records. A Pipeline holds no per-contact state and is safe for
// concurrent use across contacts.
type Pipeline struct {
	opts      Options
	formatter *Formatter
}

func New(opts Options) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	f, err := NewFormatter(opts.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &Pipeline{opts: opts, formatter: f}, nil
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Conversations runs normalization, turn grouping, segmentation, role assignment
// and filtering lazily over raws.
func (p *Pipeline) Conversations(contact Contact, raws iter.Seq[RawMessage], stats *Stats) iter.Seq[Conversation] {
	msgs := Messages(raws, stats)
	turns := Turns(msgs, p.opts.TurnWindow, stats)
	convs := Conversations(turns, contact, p.opts.ConversationGap, stats)
	roled := AssignRoles(convs, p.opts.Classifier, stats)
	return Filter(roled, p.opts.Filter, stats)
}

// Format renders a kept conversation.
func (p *Pipeline) Format(c Conversation) (Record, error) {
	return p.formatter.Format(c)
}

// Records is Conversations followed by Format. A formatting error is yielded in
// place of the failed conversation's record; iteration may continue past it.
func (p *Pipeline) Records(contact Contact, raws iter.Seq[RawMessage], stats *Stats) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for conv := range p.Conversations(contact, raws, stats) {
			rec, err := p.formatter.Format(conv)
			if !yield(rec, err) {
				return
			}
		}
	}
}
